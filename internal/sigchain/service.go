package sigchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/famproject/sigchain/internal/canonical"
	"github.com/famproject/sigchain/internal/model"
)

// appendRetryLimit bounds how many times an event append is retried after
// losing a chain-position race before the conflict is surfaced to the caller.
const appendRetryLimit = 3

// QRRenderer renders a verification URL as a QR image (PNG bytes).
type QRRenderer interface {
	Render(url string) ([]byte, error)
}

// Service is the orchestration layer coordinating the hash chain, seals,
// signatures and the document archive. It is the only writer of chain events.
type Service struct {
	store   Store
	vault   Vault
	enc     Encryptor
	qr      QRRenderer
	logger  Logger
	clock   Clock
	idgen   IDGenerator
	tokens  TokenGenerator
	baseURL string
}

// NewService creates a Service with the provided dependencies.
// baseURL is the public origin used to build verification URLs
// (e.g. "https://spi.famproject.app").
func NewService(store Store, vault Vault, enc Encryptor, qr QRRenderer, logger Logger, clock Clock, idgen IDGenerator, tokens TokenGenerator, baseURL string) *Service {
	return &Service{
		store:   store,
		vault:   vault,
		enc:     enc,
		qr:      qr,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
		tokens:  tokens,
		baseURL: baseURL,
	}
}

// LogEvent appends one event to a document's hash chain.
//
// The chain position and previous hash are read inside the same transaction
// as the insert; two writers that race past the read collide on the schema's
// (document_id, chain_position) uniqueness and the loser re-runs the whole
// read-compute-insert sequence. After appendRetryLimit failed attempts the
// conflict is surfaced as ErrChainWriteConflict.
func (s *Service) LogEvent(ctx context.Context, documentID, eventType, description string, actor ActingUser, payload map[string]any, reqCtx RequestContext) (*model.SignatureEvent, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document id is required")
	}
	if eventType == "" {
		return nil, fmt.Errorf("event type is required")
	}
	if payload == nil {
		payload = map[string]any{}
	}

	// Serialize once, up front. A malformed payload fails the operation
	// before any transaction is opened.
	payloadJSON, err := canonical.Marshal(payload)
	if err != nil {
		return nil, &HashComputationError{Err: err}
	}

	eventAt := s.clock.Now().UTC()

	var lastErr error
	for attempt := 1; attempt <= appendRetryLimit; attempt++ {
		ev, err := s.store.AppendEvent(ctx, documentID, func(position int64, prevHash string) (*model.SignatureEvent, error) {
			hash := RecomputeEventHash(documentID, eventType, eventAt, position, string(payloadJSON), prevHash)
			return &model.SignatureEvent{
				DocumentID:    documentID,
				EventType:     eventType,
				Description:   description,
				EventAt:       eventAt,
				ActorID:       actor.ID,
				ActorName:     actor.Name,
				ActorRole:     actor.Role,
				Payload:       string(payloadJSON),
				EventHash:     hash,
				PrevEventHash: prevHash,
				ChainPosition: position,
				ClientIP:      reqCtx.ClientIP,
				UserAgent:     reqCtx.UserAgent,
				SessionID:     reqCtx.SessionID,
			}, nil
		})
		if err == nil {
			s.logger.Debug("chain event appended",
				"document_id", documentID,
				"event_type", eventType,
				"position", ev.ChainPosition)
			return ev, nil
		}
		if !errors.Is(err, ErrChainWriteConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("chain position conflict, retrying",
			"document_id", documentID,
			"event_type", eventType,
			"attempt", attempt)
	}

	return nil, fmt.Errorf("appending event after %d attempts: %w", appendRetryLimit, lastErr)
}
