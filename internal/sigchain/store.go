package sigchain

import (
	"context"
	"time"

	"github.com/famproject/sigchain/internal/model"
)

// EventBuilder constructs the event row for one append attempt. The store
// calls it inside the append transaction with the next free chain position
// and the current tail hash; on a position conflict the whole
// read-compute-insert sequence is retried with fresh values, so the builder
// must be safe to call more than once.
type EventBuilder func(position int64, prevHash string) (*model.SignatureEvent, error)

// Store provides persistence for the signature subsystem. Implementations
// must guarantee that AppendEvent runs its read-compute-insert sequence in a
// single transaction, with (document_id, chain_position) uniqueness enforced
// by the schema rather than application logic.
type Store interface {
	// Document registry

	// GetDocument returns a document by ID, or nil if unknown.
	GetDocument(ctx context.Context, id string) (*model.Document, error)

	// PutDocument inserts or updates a document registry entry.
	PutDocument(ctx context.Context, doc *model.Document) error

	// SetDocumentState updates status, locked flag and current snapshot
	// pointer for a document.
	SetDocumentState(ctx context.Context, id, status string, locked bool, currentSnapshotID string) error

	// Hash snapshots (immutable: no update or delete operations exist)

	CreateSnapshot(ctx context.Context, snap *model.HashSnapshot) error

	// GetSnapshot returns a snapshot by ID, or nil if unknown.
	GetSnapshot(ctx context.Context, id string) (*model.HashSnapshot, error)

	// Event chain (append-only)

	// AppendEvent atomically reads the chain tail for a document, invokes
	// build, and inserts the produced event. A single attempt that loses a
	// race on chain position fails with ErrChainWriteConflict; callers retry.
	AppendEvent(ctx context.Context, documentID string, build EventBuilder) (*model.SignatureEvent, error)

	// ListEvents returns all events for a document ordered by ascending
	// chain position.
	ListEvents(ctx context.Context, documentID string) ([]*model.SignatureEvent, error)

	// MarkEventsVerified sets the verified flag on every event of a
	// document. Only called after a fully valid chain replay.
	MarkEventsVerified(ctx context.Context, documentID string) error

	// Seals

	// CreateSeal inserts a seal and, in the same transaction, deactivates
	// any previously active seal for the same snapshot.
	CreateSeal(ctx context.Context, seal *model.Seal) error

	// GetActiveSealByToken returns the active seal carrying the given
	// verification token, or nil if no active seal matches.
	GetActiveSealByToken(ctx context.Context, token string) (*model.Seal, error)

	// GetActiveSealForSnapshot returns the active seal for a snapshot, or nil.
	GetActiveSealForSnapshot(ctx context.Context, snapshotID string) (*model.Seal, error)

	// TrackQRAccess bumps the access counter and last-accessed timestamp on
	// a seal. Not a chain event.
	TrackQRAccess(ctx context.Context, sealID string, at time.Time) error

	// Advanced signatures

	CreateSignature(ctx context.Context, sig *model.AdvancedSignature) error

	// GetSignatureForSnapshot returns the signature bound to a snapshot, or nil.
	GetSignatureForSnapshot(ctx context.Context, snapshotID string) (*model.AdvancedSignature, error)

	// Dashboard read model

	DashboardStats(ctx context.Context) (*DashboardStats, error)

	// Close closes the underlying storage handle.
	Close() error
}

// DashboardStats is the aggregate view behind the audit dashboard. It is a
// pure projection of documents and events; nothing here feeds back into
// chain integrity.
type DashboardStats struct {
	TotalDocuments  int64
	SignedDocuments int64
	LockedDocuments int64
	TotalEvents     int64
	VerifiedEvents  int64
	StatusCounts    map[string]int64
	RecentEvents    []*model.SignatureEvent
}
