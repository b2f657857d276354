package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/famproject/sigchain/internal/api"
	"github.com/famproject/sigchain/internal/sigchain"
	"github.com/famproject/sigchain/internal/testutil"
)

var signContent = []byte("%PDF-1.7 contract body")

func newTestRouter(t *testing.T) (*api.Router, *sigchain.SignResult) {
	t.Helper()

	svc, _ := testutil.NewTestService(t)
	res, err := svc.SignDocument(context.Background(), sigchain.SignRequest{
		DocumentID:   "doc-1",
		DocumentName: "contrato.pdf",
		Version:      1,
		Content:      signContent,
		ConsentText:  "I expressly agree to sign this document.",
		Actor:        sigchain.ActingUser{ID: "user-1", Name: "Ana Silva", Role: "advogada"},
		Request:      sigchain.RequestContext{SessionID: "sess-1"},
	})
	if err != nil {
		t.Fatalf("SignDocument() error = %v", err)
	}

	return api.NewRouter(svc, sigchain.NewNopLogger(), 600, 100), res
}

func doRequest(router *api.Router, req *http.Request) *httptest.ResponseRecorder {
	req.RemoteAddr = "203.0.113.5:40000"
	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, req)
	return w
}

type envelope struct {
	OK      bool            `json:"ok"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return env
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doRequest(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", w.Code)
	}
}

func TestRouter_VerifyToken(t *testing.T) {
	t.Run("unknown token is 404", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := doRequest(router, httptest.NewRequest(http.MethodGet, "/verify/no-such-token", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
		if env := decodeEnvelope(t, w); env.OK {
			t.Error("envelope ok = true, want false")
		}
	})

	t.Run("lookup without bytes is UNKNOWN", func(t *testing.T) {
		router, signed := newTestRouter(t)
		w := doRequest(router, httptest.NewRequest(http.MethodGet, "/verify/"+signed.Seal.VerificationToken, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
		}

		var data struct {
			DocumentID string `json:"document_id"`
			Integrity  string `json:"integrity"`
			ChainValid bool   `json:"chain_valid"`
			Hash       struct {
				Value string `json:"value"`
			} `json:"hash"`
		}
		env := decodeEnvelope(t, w)
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decoding data: %v", err)
		}
		if data.Integrity != sigchain.IntegrityUnknown {
			t.Errorf("integrity = %s, want UNKNOWN", data.Integrity)
		}
		if data.DocumentID != "doc-1" || !data.ChainValid {
			t.Errorf("data = %+v", data)
		}
		if data.Hash.Value != signed.Snapshot.HashValue {
			t.Errorf("hash = %s, want %s", data.Hash.Value, signed.Snapshot.HashValue)
		}
	})

	t.Run("raw body upload gives VALID", func(t *testing.T) {
		router, signed := newTestRouter(t)
		req := httptest.NewRequest(http.MethodPost, "/verify/"+signed.Seal.VerificationToken,
			bytes.NewReader(signContent))
		w := doRequest(router, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
		}

		var data struct {
			Integrity string `json:"integrity"`
		}
		env := decodeEnvelope(t, w)
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decoding data: %v", err)
		}
		if data.Integrity != sigchain.IntegrityValid {
			t.Errorf("integrity = %s, want VALID", data.Integrity)
		}
	})

	t.Run("multipart upload with altered bytes gives INVALID", func(t *testing.T) {
		router, signed := newTestRouter(t)

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("document", "contrato.pdf")
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		altered := append([]byte{}, signContent...)
		altered[0] ^= 0xFF
		if _, err := part.Write(altered); err != nil {
			t.Fatalf("writing part: %v", err)
		}
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/verify/"+signed.Seal.VerificationToken, &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := doRequest(router, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
		}

		var data struct {
			Integrity string `json:"integrity"`
		}
		env := decodeEnvelope(t, w)
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decoding data: %v", err)
		}
		if data.Integrity != sigchain.IntegrityInvalid {
			t.Errorf("integrity = %s, want INVALID", data.Integrity)
		}
	})

	t.Run("empty upload is 400", func(t *testing.T) {
		router, signed := newTestRouter(t)
		req := httptest.NewRequest(http.MethodPost, "/verify/"+signed.Seal.VerificationToken, nil)
		w := doRequest(router, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestRouter_RateLimit(t *testing.T) {
	svc, _ := testutil.NewTestService(t)
	router := api.NewRouter(svc, sigchain.NewNopLogger(), 60, 2)

	codes := make([]int, 3)
	for i := range codes {
		w := doRequest(router, httptest.NewRequest(http.MethodGet, "/verify/some-token", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusNotFound || codes[1] != http.StatusNotFound {
		t.Errorf("first two requests = %v, want 404s", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", codes[2])
	}

	// Admin routes are not rate limited.
	w := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /api/dashboard = %d, want 200", w.Code)
	}
}

func TestRouter_AdminEndpoints(t *testing.T) {
	t.Run("audit trail lists chain events", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/audit-trail", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}

		var data struct {
			Events []struct {
				EventType     string `json:"event_type"`
				ChainPosition int64  `json:"chain_position"`
			} `json:"events"`
		}
		env := decodeEnvelope(t, w)
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decoding data: %v", err)
		}
		if len(data.Events) != 4 {
			t.Fatalf("got %d events, want 4", len(data.Events))
		}
		if data.Events[0].EventType != sigchain.EventSignatureCreated {
			t.Errorf("first event = %s, want SIGNATURE_CREATED", data.Events[0].EventType)
		}
	})

	t.Run("chain endpoint reports validity", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/chain", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}

		var data struct {
			Valid      bool  `json:"valid"`
			EventCount int64 `json:"event_count"`
		}
		env := decodeEnvelope(t, w)
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decoding data: %v", err)
		}
		if !data.Valid || data.EventCount != 4 {
			t.Errorf("data = %+v, want valid with 4 events", data)
		}
	})

	t.Run("dashboard aggregates", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}

		var data struct {
			TotalDocuments int64 `json:"total_documents"`
			TotalEvents    int64 `json:"total_events"`
		}
		env := decodeEnvelope(t, w)
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decoding data: %v", err)
		}
		if data.TotalDocuments != 1 || data.TotalEvents != 4 {
			t.Errorf("data = %+v, want 1 document and 4 events", data)
		}
	})
}
