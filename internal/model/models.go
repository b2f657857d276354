package model

import "time"

// Document signing states.
const (
	DocStatusPending = "PENDING"
	DocStatusSigned  = "SIGNED"
	DocStatusLocked  = "LOCKED"
)

// Document is the minimal registry entry the signature subsystem keeps for
// each document it has touched. Content bytes live in the archive vault;
// everything else about a document belongs to the document-management module.
type Document struct {
	ID                string // External document identifier
	Name              string
	Version           int
	Status            string // PENDING, SIGNED or LOCKED
	Locked            bool
	CurrentSnapshotID string // Foreign key to latest HashSnapshot, empty if none
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HashSnapshot is an immutable record of a document's content hash at a
// signing round. Never mutated after insert.
type HashSnapshot struct {
	ID            string // UUID
	DocumentID    string
	Version       int
	HashAlgorithm string // Always "SHA-256"
	HashValue     string // Lowercase hex digest
	CapturedBy    string // User ID that triggered the capture
	CapturedAt    time.Time
}

// SignatureEvent is one link in a document's hash chain. Rows are append-only:
// any UPDATE or DELETE invalidates every downstream hash.
type SignatureEvent struct {
	ID             int64  // Auto-increment row id
	DocumentID     string
	EventType      string
	Description    string
	EventAt        time.Time
	ActorID        string
	ActorName      string
	ActorRole      string
	Payload        string // Canonical JSON
	EventHash      string // Hex digest
	PrevEventHash  string // Hex digest of predecessor, "" for position 1
	ChainPosition  int64  // 1-based, unique per document
	Verified       bool
	ClientIP       string
	UserAgent      string
	SessionID      string
}

// Seal binds a hash snapshot to a human-readable code and a public
// verification token. Superseded seals are deactivated, never deleted.
type Seal struct {
	ID                string // UUID
	SnapshotID        string
	SealCode          string
	AuthorizedRole    string
	VerificationToken string
	Active            bool
	IssuedBy          string
	IssuedAt          time.Time
	QRAccessCount     int64
	QRLastAccessedAt  time.Time // Zero if never accessed
}

// AdvancedSignature records a signer's act against one hash snapshot.
type AdvancedSignature struct {
	ID            string // UUID
	DocumentID    string
	SnapshotID    string
	SignerID      string
	SignerName    string
	RoleAtSign    string
	ConsentText   string
	SignatureHash string // Binds signer + snapshot + time + session
	ClientIP      string
	UserAgent     string
	SessionID     string
	SignedAt      time.Time
}
