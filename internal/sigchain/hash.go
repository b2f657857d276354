package sigchain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/famproject/sigchain/internal/canonical"
)

// hashDomain is the domain-separation prefix for event hashes. The version
// suffix allows a future algorithm migration without ambiguity.
const hashDomain = "sigchain/event/v1"

// HashAlgorithm is the fixed content-hash algorithm, as displayed to users.
const HashAlgorithm = "SHA-256"

// ComputeEventHash computes the hash of one chain event as a pure function of
// its stored fields. Recomputing from a stored row must reproduce the stored
// digest exactly; any difference means the row was tampered with.
//
// Fields are fed to SHA-256 in a fixed order, separated by NUL bytes so field
// boundaries cannot be forged by concatenation:
//
//	domain, documentID, eventType, RFC3339Nano UTC timestamp,
//	decimal chain position, canonical-JSON payload, previous hash.
//
// prevHash is the empty string for the first event of a document.
func ComputeEventHash(documentID, eventType string, eventAt time.Time, position int64, payload map[string]any, prevHash string) (string, error) {
	payloadJSON, err := canonical.Marshal(payload)
	if err != nil {
		return "", &HashComputationError{Err: err}
	}
	return hashEventFields(documentID, eventType, eventAt, position, payloadJSON, prevHash), nil
}

// RecomputeEventHash recomputes an event hash from an already-serialized
// payload, as stored in the event row. Used by the chain verifier so the
// stored bytes are hashed exactly as written.
func RecomputeEventHash(documentID, eventType string, eventAt time.Time, position int64, payloadJSON string, prevHash string) string {
	return hashEventFields(documentID, eventType, eventAt, position, []byte(payloadJSON), prevHash)
}

func hashEventFields(documentID, eventType string, eventAt time.Time, position int64, payloadJSON []byte, prevHash string) string {
	h := sha256.New()
	writeField := func(b []byte) {
		h.Write(b)
		h.Write([]byte{0x00})
	}
	writeField([]byte(hashDomain))
	writeField([]byte(documentID))
	writeField([]byte(eventType))
	writeField([]byte(eventAt.UTC().Format(time.RFC3339Nano)))
	writeField([]byte(strconv.FormatInt(position, 10)))
	writeField(payloadJSON)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the SHA-256 hex digest of document content bytes,
// the value stored in a hash snapshot.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SignatureHash binds a signer to a specific content hash at a specific
// moment in a specific session.
func SignatureHash(contentHash, signerID string, signedAt time.Time, sessionID string) string {
	sum := sha256.Sum256([]byte(contentHash + signerID + signedAt.UTC().Format(time.RFC3339) + sessionID))
	return hex.EncodeToString(sum[:])
}
