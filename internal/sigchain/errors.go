package sigchain

import (
	"errors"
	"fmt"
)

// ErrTokenNotFound is returned for verification tokens that are absent or
// inactive. Callers must not distinguish the two cases: a uniform miss
// prevents probing for seal lifecycle information.
var ErrTokenNotFound = errors.New("verification token not found")

// ErrChainWriteConflict is returned after concurrent writers exhausted the
// append retry budget. The caller may retry the whole signing action.
var ErrChainWriteConflict = errors.New("chain write conflict: concurrent writers raced on chain position")

// ErrDocumentLocked is returned when signing a document that has already been
// locked by a prior signature.
var ErrDocumentLocked = errors.New("document is locked for new signatures")

// ErrAlreadySigned is returned when a snapshot already carries an advanced
// signature by the same flow.
var ErrAlreadySigned = errors.New("snapshot already has an advanced signature")

// HashComputationError reports malformed input to the hash engine, typically
// a payload that cannot be canonically serialized. Not retried.
type HashComputationError struct {
	Err error
}

func (e *HashComputationError) Error() string {
	return fmt.Sprintf("event hash computation failed: %v", e.Err)
}

func (e *HashComputationError) Unwrap() error { return e.Err }

// ChainBrokenError reports the first corrupted link found by the verifier.
// Never auto-corrected; the document must be flagged for investigation.
type ChainBrokenError struct {
	DocumentID string
	Position   int64
	Reason     string // "hash mismatch" or "link mismatch"
}

func (e *ChainBrokenError) Error() string {
	return fmt.Sprintf("chain broken for document %s at position %d: %s", e.DocumentID, e.Position, e.Reason)
}
