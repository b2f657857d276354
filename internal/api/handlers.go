package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/famproject/sigchain/internal/model"
	"github.com/famproject/sigchain/internal/sigchain"
)

// maxDocumentBytes caps uploads on the public verification endpoint.
const maxDocumentBytes = 32 << 20

// Handler holds the HTTP handlers for the verification surface.
type Handler struct {
	svc    *sigchain.Service
	logger sigchain.Logger
}

// NewHandler creates a Handler backed by svc.
func NewHandler(svc *sigchain.Service, logger sigchain.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func okJSON(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": data})
}

func errJSON(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"ok": false, "message": message})
}

// verificationJSON is the public wire form of a verification result. Fields
// that never leave the system (consent text, client metadata, row ids) are
// absent by construction.
type verificationJSON struct {
	DocumentID string `json:"document_id"`
	Integrity  string `json:"integrity"`
	ChainValid bool   `json:"chain_valid"`
	Hash       struct {
		Value      string    `json:"value"`
		Algorithm  string    `json:"algorithm"`
		CapturedAt time.Time `json:"captured_at"`
	} `json:"hash"`
	Seal struct {
		Code           string    `json:"code"`
		AuthorizedRole string    `json:"authorized_role"`
		IssuedAt       time.Time `json:"issued_at"`
	} `json:"seal"`
	Signature *signatureJSON `json:"signature,omitempty"`
}

type signatureJSON struct {
	SignerID   string    `json:"signer_id"`
	SignerName string    `json:"signer_name"`
	Role       string    `json:"role"`
	SignedAt   time.Time `json:"signed_at"`
}

func toVerificationJSON(res *sigchain.VerificationResult) *verificationJSON {
	out := &verificationJSON{
		DocumentID: res.DocumentID,
		Integrity:  res.Integrity,
		ChainValid: res.ChainValid,
	}
	out.Hash.Value = res.Hash.Value
	out.Hash.Algorithm = res.Hash.Algorithm
	out.Hash.CapturedAt = res.Hash.CapturedAt
	out.Seal.Code = res.Seal.Code
	out.Seal.AuthorizedRole = res.Seal.AuthorizedRole
	out.Seal.IssuedAt = res.Seal.IssuedAt
	if res.Signature.SignerID != "" {
		out.Signature = &signatureJSON{
			SignerID:   res.Signature.SignerID,
			SignerName: res.Signature.SignerName,
			Role:       res.Signature.Role,
			SignedAt:   res.Signature.SignedAt,
		}
	}
	return out
}

// VerifyToken handles GET /verify/:token. Without document bytes the
// integrity verdict is always UNKNOWN; the response still exposes the sealed
// hash so a caller can compare out of band.
func (h *Handler) VerifyToken(c *gin.Context) {
	res, err := h.svc.Verify(c.Request.Context(), c.Param("token"), nil)
	if err != nil {
		h.verifyError(c, err)
		return
	}
	okJSON(c, toVerificationJSON(res))
}

// VerifyTokenWithDocument handles POST /verify/:token. The document travels
// either as a multipart "document" file or as the raw request body; the
// service recomputes its hash server-side.
func (h *Handler) VerifyTokenWithDocument(c *gin.Context) {
	content, err := h.readDocument(c)
	if err != nil {
		errJSON(c, http.StatusBadRequest, "could not read document upload")
		return
	}
	if len(content) == 0 {
		errJSON(c, http.StatusBadRequest, "document bytes are required")
		return
	}

	res, err := h.svc.Verify(c.Request.Context(), c.Param("token"), content)
	if err != nil {
		h.verifyError(c, err)
		return
	}
	okJSON(c, toVerificationJSON(res))
}

func (h *Handler) readDocument(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxDocumentBytes)

	file, _, err := c.Request.FormFile("document")
	if err == nil {
		defer file.Close()
		return io.ReadAll(file)
	}
	if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingFile) {
		return io.ReadAll(c.Request.Body)
	}
	return nil, err
}

// verifyError maps service errors onto the public surface. A missing,
// expired or superseded token always reads the same way.
func (h *Handler) verifyError(c *gin.Context, err error) {
	if errors.Is(err, sigchain.ErrTokenNotFound) {
		errJSON(c, http.StatusNotFound, "verification token not found")
		return
	}
	h.logger.Error("verification request failed", "error", err)
	errJSON(c, http.StatusInternalServerError, "verification failed")
}

// eventJSON is the admin wire form of a chain event.
type eventJSON struct {
	DocumentID    string    `json:"document_id"`
	EventType     string    `json:"event_type"`
	Description   string    `json:"description"`
	EventAt       time.Time `json:"event_at"`
	ActorID       string    `json:"actor_id"`
	ActorName     string    `json:"actor_name"`
	ActorRole     string    `json:"actor_role"`
	EventHash     string    `json:"event_hash"`
	PrevEventHash string    `json:"prev_event_hash"`
	ChainPosition int64     `json:"chain_position"`
	Verified      bool      `json:"verified"`
}

func toEventJSON(events []*model.SignatureEvent) []eventJSON {
	out := make([]eventJSON, 0, len(events))
	for _, ev := range events {
		out = append(out, eventJSON{
			DocumentID:    ev.DocumentID,
			EventType:     ev.EventType,
			Description:   ev.Description,
			EventAt:       ev.EventAt,
			ActorID:       ev.ActorID,
			ActorName:     ev.ActorName,
			ActorRole:     ev.ActorRole,
			EventHash:     ev.EventHash,
			PrevEventHash: ev.PrevEventHash,
			ChainPosition: ev.ChainPosition,
			Verified:      ev.Verified,
		})
	}
	return out
}

// AuditTrail handles GET /api/documents/:id/audit-trail.
func (h *Handler) AuditTrail(c *gin.Context) {
	events, err := h.svc.AuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("loading audit trail failed", "document_id", c.Param("id"), "error", err)
		errJSON(c, http.StatusInternalServerError, "could not load audit trail")
		return
	}
	okJSON(c, gin.H{
		"document_id": c.Param("id"),
		"events":      toEventJSON(events),
	})
}

// VerifyChain handles GET /api/documents/:id/chain. It replays the chain
// read-only and reports where it breaks, if anywhere.
func (h *Handler) VerifyChain(c *gin.Context) {
	res, err := h.svc.VerifyChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("chain verification request failed", "document_id", c.Param("id"), "error", err)
		errJSON(c, http.StatusInternalServerError, "could not verify chain")
		return
	}
	okJSON(c, gin.H{
		"document_id":        res.DocumentID,
		"valid":              res.Valid,
		"broken_at_position": res.BrokenAtPosition,
		"reason":             res.Reason,
		"event_count":        len(res.Events),
	})
}

// Dashboard handles GET /api/dashboard.
func (h *Handler) Dashboard(c *gin.Context) {
	stats, err := h.svc.Dashboard(c.Request.Context())
	if err != nil {
		h.logger.Error("loading dashboard failed", "error", err)
		errJSON(c, http.StatusInternalServerError, "could not load dashboard")
		return
	}
	okJSON(c, gin.H{
		"total_documents":  stats.TotalDocuments,
		"signed_documents": stats.SignedDocuments,
		"locked_documents": stats.LockedDocuments,
		"total_events":     stats.TotalEvents,
		"verified_events":  stats.VerifiedEvents,
		"status_counts":    stats.StatusCounts,
		"recent_events":    toEventJSON(stats.RecentEvents),
	})
}
