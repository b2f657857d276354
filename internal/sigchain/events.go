package sigchain

// Chain event types. The chain accepts future types without schema changes;
// these are the ones the service emits today.
const (
	EventSignatureCreated = "SIGNATURE_CREATED"
	EventSealCreated      = "SEAL_CREATED"
	EventQRGenerated      = "QR_GENERATED"
	EventDocumentLocked   = "DOCUMENT_LOCKED"
)

// ActingUser identifies who triggered a chain event, as supplied by the auth
// middleware upstream of this module.
type ActingUser struct {
	ID   string
	Name string
	Role string
}

// RequestContext carries the client-side metadata recorded with each event.
type RequestContext struct {
	ClientIP  string
	UserAgent string
	SessionID string
}
