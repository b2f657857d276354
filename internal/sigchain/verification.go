package sigchain

import (
	"context"
	"fmt"
	"time"
)

// Integrity tri-state reported by public verification.
const (
	IntegrityValid   = "VALID"
	IntegrityInvalid = "INVALID"
	IntegrityUnknown = "UNKNOWN"
)

// VerificationResult is the public, credential-free view of a sealed
// document. It deliberately carries no consent text, no client metadata and
// no internal row identifiers.
type VerificationResult struct {
	DocumentID string
	Integrity  string // VALID, INVALID or UNKNOWN
	ChainValid bool

	Hash struct {
		Value      string
		Algorithm  string
		CapturedAt time.Time
	}
	Seal struct {
		Code           string
		AuthorizedRole string
		IssuedAt       time.Time
	}
	Signature struct {
		SignerID   string
		SignerName string
		Role       string
		SignedAt   time.Time
	}
}

// Verify resolves a verification token to its sealed document and reports
// integrity.
//
// Integrity is VALID only when documentBytes are supplied and their SHA-256
// matches the snapshot's stored hash. The service recomputes and never
// trusts an asserted hash. Without bytes the result is UNKNOWN. A token that
// does not resolve to an active seal fails with ErrTokenNotFound, which is
// indistinguishable from "never existed".
func (s *Service) Verify(ctx context.Context, token string, documentBytes []byte) (*VerificationResult, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}

	seal, err := s.store.GetActiveSealByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("looking up seal: %w", err)
	}
	if seal == nil {
		return nil, ErrTokenNotFound
	}

	snapshot, err := s.store.GetSnapshot(ctx, seal.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	if snapshot == nil {
		// A seal without its snapshot means storage corruption; report it
		// as a miss rather than leaking internals to an anonymous caller.
		s.logger.Error("seal references missing snapshot", "seal_id", seal.ID, "snapshot_id", seal.SnapshotID)
		return nil, ErrTokenNotFound
	}

	result := &VerificationResult{
		DocumentID: snapshot.DocumentID,
		Integrity:  IntegrityUnknown,
	}
	result.Hash.Value = snapshot.HashValue
	result.Hash.Algorithm = snapshot.HashAlgorithm
	result.Hash.CapturedAt = snapshot.CapturedAt
	result.Seal.Code = seal.SealCode
	result.Seal.AuthorizedRole = seal.AuthorizedRole
	result.Seal.IssuedAt = seal.IssuedAt

	if len(documentBytes) > 0 {
		if ContentHash(documentBytes) == snapshot.HashValue {
			result.Integrity = IntegrityValid
		} else {
			result.Integrity = IntegrityInvalid
		}
	}

	chain, err := s.VerifyChain(ctx, snapshot.DocumentID)
	if err != nil {
		return nil, err
	}
	result.ChainValid = chain.Valid

	sig, err := s.store.GetSignatureForSnapshot(ctx, snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("loading signature: %w", err)
	}
	if sig != nil {
		result.Signature.SignerID = sig.SignerID
		result.Signature.SignerName = sig.SignerName
		result.Signature.Role = sig.RoleAtSign
		result.Signature.SignedAt = sig.SignedAt
	}

	// Access tracking is best-effort bookkeeping, not part of the chain.
	if err := s.store.TrackQRAccess(ctx, seal.ID, s.clock.Now().UTC()); err != nil {
		s.logger.Warn("tracking QR access failed", "seal_id", seal.ID, "error", err)
	}

	return result, nil
}
