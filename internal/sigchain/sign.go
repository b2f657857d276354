package sigchain

import (
	"bytes"
	"context"
	"fmt"

	"github.com/famproject/sigchain/internal/model"
)

// SignRequest carries everything needed to execute an advanced signature.
// Content bytes and version come from the document-management module; the
// acting user comes from the auth middleware.
type SignRequest struct {
	DocumentID     string
	DocumentName   string
	Version        int
	Content        []byte
	ConsentText    string
	RoleAtSign     string // Defaults to the actor's role
	AuthorizedRole string // Institutional role stamped on the seal
	Actor          ActingUser
	Request        RequestContext
}

// SignResult is the outcome of a completed signing round.
type SignResult struct {
	Snapshot  *model.HashSnapshot
	Signature *model.AdvancedSignature
	Seal      *model.Seal
	QRURL     string
}

// SignDocument executes the full advanced-signature flow for one document
// version: capture a hash snapshot, record the signature, apply the
// institutional seal, issue the verification QR, archive the content, and
// lock the document. Each step appends its own chain event.
//
// Signing a locked document is refused; a signing round that completes leaves
// the document locked against further rounds until explicitly unlocked by
// the document-management module.
func (s *Service) SignDocument(ctx context.Context, req SignRequest) (*SignResult, error) {
	if req.Actor.ID == "" {
		return nil, fmt.Errorf("acting user is required")
	}
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("document content is required")
	}
	if req.ConsentText == "" {
		return nil, fmt.Errorf("express consent text is required")
	}
	if req.Request.SessionID == "" {
		return nil, fmt.Errorf("session id is required for traceability")
	}
	roleAtSign := req.RoleAtSign
	if roleAtSign == "" {
		roleAtSign = req.Actor.Role
	}
	authorizedRole := req.AuthorizedRole
	if authorizedRole == "" {
		authorizedRole = req.Actor.Role
	}

	doc, err := s.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if doc != nil && doc.Locked {
		return nil, ErrDocumentLocked
	}
	if doc == nil {
		doc = &model.Document{
			ID:        req.DocumentID,
			Name:      req.DocumentName,
			Version:   req.Version,
			Status:    model.DocStatusPending,
			CreatedAt: s.clock.Now().UTC(),
		}
	} else {
		doc.Version = req.Version
		doc.Status = model.DocStatusPending
	}
	doc.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.PutDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("recording document: %w", err)
	}

	// 1. Capture the content hash snapshot.
	snapshot := &model.HashSnapshot{
		ID:            s.idgen.New(),
		DocumentID:    req.DocumentID,
		Version:       req.Version,
		HashAlgorithm: HashAlgorithm,
		HashValue:     ContentHash(req.Content),
		CapturedBy:    req.Actor.ID,
		CapturedAt:    s.clock.Now().UTC(),
	}
	if err := s.store.CreateSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("creating hash snapshot: %w", err)
	}

	// 2. Record the advanced signature bound to that snapshot.
	existing, err := s.store.GetSignatureForSnapshot(ctx, snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("checking for existing signature: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadySigned
	}

	signedAt := s.clock.Now().UTC()
	signature := &model.AdvancedSignature{
		ID:            s.idgen.New(),
		DocumentID:    req.DocumentID,
		SnapshotID:    snapshot.ID,
		SignerID:      req.Actor.ID,
		SignerName:    req.Actor.Name,
		RoleAtSign:    roleAtSign,
		ConsentText:   req.ConsentText,
		SignatureHash: SignatureHash(snapshot.HashValue, req.Actor.ID, signedAt, req.Request.SessionID),
		ClientIP:      req.Request.ClientIP,
		UserAgent:     req.Request.UserAgent,
		SessionID:     req.Request.SessionID,
		SignedAt:      signedAt,
	}
	if err := s.store.CreateSignature(ctx, signature); err != nil {
		return nil, fmt.Errorf("creating advanced signature: %w", err)
	}

	_, err = s.LogEvent(ctx, req.DocumentID, EventSignatureCreated, "advanced signature applied", req.Actor, map[string]any{
		"snapshot_id":    snapshot.ID,
		"hash_value":     snapshot.HashValue,
		"signer_user_id": req.Actor.ID,
		"role_at_sign":   roleAtSign,
		"signed_at":      signedAt.Format(timeFormat),
		"signature_hash": signature.SignatureHash,
	}, req.Request)
	if err != nil {
		return nil, err
	}

	// 3. Institutional seal and verification QR; both add chain events.
	seal, err := s.ApplySeal(ctx, snapshot.ID, authorizedRole, req.Actor, req.Request)
	if err != nil {
		return nil, err
	}
	qrURL, err := s.IssueQR(ctx, seal, req.Actor, req.Request)
	if err != nil {
		return nil, err
	}

	// 4. Archive the signed bytes, encrypted, addressed by content hash.
	// Archive failure must not undo the chain: the events above stand, the
	// bytes can be re-archived later.
	if err := s.archiveContent(snapshot.HashValue, req.Content); err != nil {
		s.logger.Warn("archiving signed document failed",
			"document_id", req.DocumentID,
			"hash", snapshot.HashValue,
			"error", err)
	}

	// 5. Lock the document against further signing rounds.
	if err := s.store.SetDocumentState(ctx, req.DocumentID, model.DocStatusLocked, true, snapshot.ID); err != nil {
		return nil, fmt.Errorf("locking document: %w", err)
	}
	_, err = s.LogEvent(ctx, req.DocumentID, EventDocumentLocked, "document locked after signature", req.Actor, map[string]any{
		"snapshot_id": snapshot.ID,
		"locked_by":   req.Actor.ID,
		"reason":      "advanced_signature",
	}, req.Request)
	if err != nil {
		return nil, err
	}

	s.logger.Info("document signed",
		"document_id", req.DocumentID,
		"snapshot_id", snapshot.ID,
		"signer", req.Actor.ID,
		"seal_code", seal.SealCode)

	return &SignResult{
		Snapshot:  snapshot,
		Signature: signature,
		Seal:      seal,
		QRURL:     qrURL,
	}, nil
}

// archiveContent encrypts content with the archive public key and stores it
// in the vault under its plaintext content hash.
func (s *Service) archiveContent(contentHash string, content []byte) error {
	if s.vault == nil {
		return nil
	}
	var ciphertext bytes.Buffer
	if s.enc != nil && s.enc.IsConfigured() {
		if err := s.enc.Encrypt(bytes.NewReader(content), &ciphertext); err != nil {
			return fmt.Errorf("encrypting document: %w", err)
		}
	} else {
		ciphertext.Write(content)
	}
	if err := s.vault.PutDocument(contentHash, &ciphertext, int64(ciphertext.Len())); err != nil {
		return fmt.Errorf("uploading to vault: %w", err)
	}
	return nil
}

// FetchArchivedDocument retrieves and decrypts archived document bytes by
// content hash. dec comes from Encryptor.Unlock.
func (s *Service) FetchArchivedDocument(contentHash string, dec DecryptionContext) ([]byte, error) {
	if s.vault == nil {
		return nil, fmt.Errorf("no vault configured")
	}
	var ciphertext bytes.Buffer
	if err := s.vault.GetDocument(contentHash, &ciphertext); err != nil {
		return nil, fmt.Errorf("fetching from vault: %w", err)
	}
	if dec == nil {
		return ciphertext.Bytes(), nil
	}
	var plaintext bytes.Buffer
	if err := dec.Decrypt(&ciphertext, &plaintext); err != nil {
		return nil, fmt.Errorf("decrypting document: %w", err)
	}
	return plaintext.Bytes(), nil
}
