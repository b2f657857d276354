package sigchain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/famproject/sigchain/internal/model"
)

// timeFormat is used wherever timestamps appear inside event payloads.
const timeFormat = time.RFC3339

// ApplySeal issues an institutional seal for a hash snapshot and appends a
// SEAL_CREATED chain event.
//
// Only one seal may be active per snapshot; if one exists it is deactivated
// in the same transaction as the new insert (it remains in history). The
// verification token is freshly drawn from a CSPRNG on every call; it is
// the sole credential for public lookups and must be unguessable.
func (s *Service) ApplySeal(ctx context.Context, snapshotID, authorizedRole string, actor ActingUser, reqCtx RequestContext) (*model.Seal, error) {
	if authorizedRole == "" {
		return nil, fmt.Errorf("institutional role is required for the digital seal")
	}

	snapshot, err := s.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, fmt.Errorf("hash snapshot not found: %s", snapshotID)
	}

	token, err := s.tokens.NewToken()
	if err != nil {
		return nil, fmt.Errorf("generating verification token: %w", err)
	}

	seal := &model.Seal{
		ID:                s.idgen.New(),
		SnapshotID:        snapshot.ID,
		SealCode:          SealCode(snapshot.DocumentID, authorizedRole, snapshot.ID, s.clock.Now()),
		AuthorizedRole:    authorizedRole,
		VerificationToken: token,
		Active:            true,
		IssuedBy:          actor.ID,
		IssuedAt:          s.clock.Now().UTC(),
	}
	if err := s.store.CreateSeal(ctx, seal); err != nil {
		return nil, fmt.Errorf("creating seal: %w", err)
	}

	_, err = s.LogEvent(ctx, snapshot.DocumentID, EventSealCreated, "institutional seal applied", actor, map[string]any{
		"snapshot_id":     snapshot.ID,
		"seal_code":       seal.SealCode,
		"authorized_role": authorizedRole,
	}, reqCtx)
	if err != nil {
		return nil, err
	}

	return seal, nil
}

// IssueQR builds the public verification URL for a seal, renders the QR
// image into the vault, and appends a QR_GENERATED chain event. Returns the
// verification URL.
//
// The QR image is a convenience asset: a rendering or upload failure is
// logged and the URL still returned, leaving the chain intact.
func (s *Service) IssueQR(ctx context.Context, seal *model.Seal, actor ActingUser, reqCtx RequestContext) (string, error) {
	url := s.VerificationURL(seal.VerificationToken)

	if s.qr != nil && s.vault != nil {
		png, err := s.qr.Render(url)
		if err != nil {
			s.logger.Warn("rendering QR image failed", "seal_id", seal.ID, "error", err)
		} else if err := s.vault.PutAsset("qr/"+seal.ID+".png", bytes.NewReader(png), int64(len(png))); err != nil {
			s.logger.Warn("storing QR image failed", "seal_id", seal.ID, "error", err)
		}
	}

	snapshot, err := s.store.GetSnapshot(ctx, seal.SnapshotID)
	if err != nil {
		return "", fmt.Errorf("loading snapshot: %w", err)
	}
	if snapshot == nil {
		return "", fmt.Errorf("hash snapshot not found: %s", seal.SnapshotID)
	}

	_, err = s.LogEvent(ctx, snapshot.DocumentID, EventQRGenerated, "verification QR issued", actor, map[string]any{
		"snapshot_id": seal.SnapshotID,
		"seal_id":     seal.ID,
		"seal_code":   seal.SealCode,
	}, reqCtx)
	if err != nil {
		return "", err
	}

	return url, nil
}

// VerificationURL returns the public URL for a verification token.
func (s *Service) VerificationURL(token string) string {
	return strings.TrimRight(s.baseURL, "/") + "/verify/" + token
}

// SealCode derives the human-readable seal code. It is deterministic (seal
// codes are display identifiers, not credentials) and disambiguated by a
// short digest so two sealing rounds of the same document never collide.
// Format: SPI-<year>-<role abbreviation>-<4 hex chars>.
func SealCode(documentID, authorizedRole, snapshotID string, at time.Time) string {
	sum := sha256.Sum256([]byte(documentID + "|" + authorizedRole + "|" + snapshotID))
	suffix := hex.EncodeToString(sum[:2])
	return fmt.Sprintf("SPI-%d-%s-%s", at.UTC().Year(), roleAbbrev(authorizedRole), strings.ToUpper(suffix))
}

// roleAbbrev reduces a role name to at most three uppercase letters.
func roleAbbrev(role string) string {
	cleaned := make([]rune, 0, 3)
	for _, r := range strings.ToUpper(role) {
		if r >= 'A' && r <= 'Z' {
			cleaned = append(cleaned, r)
			if len(cleaned) == 3 {
				break
			}
		}
	}
	if len(cleaned) == 0 {
		return "ADV"
	}
	return string(cleaned)
}
