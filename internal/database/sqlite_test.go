package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/famproject/sigchain/internal/model"
	"github.com/famproject/sigchain/internal/sigchain"
	"github.com/famproject/sigchain/internal/testutil"
)

func fixedTime() time.Time {
	return time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
}

func testEvent(documentID string, position int64, prevHash string) *model.SignatureEvent {
	return &model.SignatureEvent{
		DocumentID:    documentID,
		EventType:     "SIGNATURE_CREATED",
		Description:   "test event",
		EventAt:       fixedTime(),
		ActorID:       "user-1",
		Payload:       "{}",
		EventHash:     sigchain.RecomputeEventHash(documentID, "SIGNATURE_CREATED", fixedTime(), position, "{}", prevHash),
		PrevEventHash: prevHash,
		ChainPosition: position,
		SessionID:     "sess-1",
	}
}

func TestSQLiteStore_AppendEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("first event starts at position 1 with empty prev hash", func(t *testing.T) {
		store := testutil.NewTestStore(t)

		ev, err := store.AppendEvent(ctx, "doc-1", func(position int64, prevHash string) (*model.SignatureEvent, error) {
			if position != 1 {
				t.Errorf("builder position = %d, want 1", position)
			}
			if prevHash != "" {
				t.Errorf("builder prev hash = %q, want empty", prevHash)
			}
			return testEvent("doc-1", position, prevHash), nil
		})
		if err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
		if ev.ID == 0 {
			t.Error("event id not assigned")
		}
	})

	t.Run("builder sees the previous event's hash", func(t *testing.T) {
		store := testutil.NewTestStore(t)

		first, err := store.AppendEvent(ctx, "doc-1", func(position int64, prevHash string) (*model.SignatureEvent, error) {
			return testEvent("doc-1", position, prevHash), nil
		})
		if err != nil {
			t.Fatalf("AppendEvent() #1 error = %v", err)
		}

		_, err = store.AppendEvent(ctx, "doc-1", func(position int64, prevHash string) (*model.SignatureEvent, error) {
			if position != 2 {
				t.Errorf("builder position = %d, want 2", position)
			}
			if prevHash != first.EventHash {
				t.Errorf("builder prev hash = %q, want %q", prevHash, first.EventHash)
			}
			return testEvent("doc-1", position, prevHash), nil
		})
		if err != nil {
			t.Fatalf("AppendEvent() #2 error = %v", err)
		}
	})

	t.Run("builder errors abort the transaction", func(t *testing.T) {
		store := testutil.NewTestStore(t)

		wantErr := errors.New("builder failed")
		_, err := store.AppendEvent(ctx, "doc-1", func(int64, string) (*model.SignatureEvent, error) {
			return nil, wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("AppendEvent() error = %v, want builder error", err)
		}

		events, err := store.ListEvents(ctx, "doc-1")
		if err != nil {
			t.Fatalf("ListEvents() error = %v", err)
		}
		if len(events) != 0 {
			t.Errorf("aborted append left %d event(s)", len(events))
		}
	})

	t.Run("claiming an occupied position is a write conflict", func(t *testing.T) {
		store := testutil.NewTestStore(t)

		if _, err := store.AppendEvent(ctx, "doc-1", func(position int64, prevHash string) (*model.SignatureEvent, error) {
			return testEvent("doc-1", position, prevHash), nil
		}); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}

		// A builder that ignores its arguments simulates a writer that read
		// the tail before the first append landed.
		_, err := store.AppendEvent(ctx, "doc-1", func(int64, string) (*model.SignatureEvent, error) {
			return testEvent("doc-1", 1, ""), nil
		})
		if !errors.Is(err, sigchain.ErrChainWriteConflict) {
			t.Fatalf("AppendEvent() error = %v, want ErrChainWriteConflict", err)
		}
	})
}

func TestSQLiteStore_Documents(t *testing.T) {
	ctx := context.Background()

	t.Run("missing document returns nil", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		doc, err := store.GetDocument(ctx, "missing")
		if err != nil {
			t.Fatalf("GetDocument() error = %v", err)
		}
		if doc != nil {
			t.Errorf("GetDocument() = %+v, want nil", doc)
		}
	})

	t.Run("put then get round-trips", func(t *testing.T) {
		store := testutil.NewTestStore(t)

		doc := &model.Document{
			ID:        "doc-1",
			Name:      "contrato.pdf",
			Version:   2,
			Status:    model.DocStatusPending,
			CreatedAt: fixedTime(),
			UpdatedAt: fixedTime(),
		}
		if err := store.PutDocument(ctx, doc); err != nil {
			t.Fatalf("PutDocument() error = %v", err)
		}

		got, err := store.GetDocument(ctx, "doc-1")
		if err != nil {
			t.Fatalf("GetDocument() error = %v", err)
		}
		if got.Name != doc.Name || got.Version != doc.Version || got.Status != doc.Status {
			t.Errorf("GetDocument() = %+v, want %+v", got, doc)
		}
	})

	t.Run("set state locks the document", func(t *testing.T) {
		store := testutil.NewTestStore(t)

		doc := &model.Document{ID: "doc-1", Status: model.DocStatusPending, CreatedAt: fixedTime(), UpdatedAt: fixedTime()}
		if err := store.PutDocument(ctx, doc); err != nil {
			t.Fatalf("PutDocument() error = %v", err)
		}
		snap := &model.HashSnapshot{
			ID: "snap-1", DocumentID: "doc-1", Version: 1,
			HashAlgorithm: "SHA-256", HashValue: testutil.SHA256Hex([]byte("x")),
			CapturedBy: "user-1", CapturedAt: fixedTime(),
		}
		if err := store.CreateSnapshot(ctx, snap); err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}

		if err := store.SetDocumentState(ctx, "doc-1", model.DocStatusLocked, true, "snap-1"); err != nil {
			t.Fatalf("SetDocumentState() error = %v", err)
		}

		got, err := store.GetDocument(ctx, "doc-1")
		if err != nil {
			t.Fatalf("GetDocument() error = %v", err)
		}
		if !got.Locked || got.Status != model.DocStatusLocked || got.CurrentSnapshotID != "snap-1" {
			t.Errorf("document after lock = %+v", got)
		}
	})
}

func TestSQLiteStore_Seals(t *testing.T) {
	ctx := context.Background()

	seedSnapshot := func(t *testing.T, store sigchain.Store, id string) {
		t.Helper()
		doc := &model.Document{ID: "doc-1", Status: model.DocStatusPending, CreatedAt: fixedTime(), UpdatedAt: fixedTime()}
		if err := store.PutDocument(ctx, doc); err != nil {
			t.Fatalf("PutDocument() error = %v", err)
		}
		snap := &model.HashSnapshot{
			ID: id, DocumentID: "doc-1", Version: 1,
			HashAlgorithm: "SHA-256", HashValue: testutil.SHA256Hex([]byte(id)),
			CapturedBy: "user-1", CapturedAt: fixedTime(),
		}
		if err := store.CreateSnapshot(ctx, snap); err != nil {
			t.Fatalf("CreateSnapshot() error = %v", err)
		}
	}

	newSeal := func(id, snapshotID, token string) *model.Seal {
		return &model.Seal{
			ID: id, SnapshotID: snapshotID,
			SealCode: "SPI-2025-ADV-AB12", AuthorizedRole: "advogada",
			VerificationToken: token, Active: true,
			IssuedBy: "user-1", IssuedAt: fixedTime(),
		}
	}

	t.Run("new seal deactivates the previous one", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		seedSnapshot(t, store, "snap-1")

		if err := store.CreateSeal(ctx, newSeal("seal-1", "snap-1", "token-1")); err != nil {
			t.Fatalf("CreateSeal() #1 error = %v", err)
		}
		if err := store.CreateSeal(ctx, newSeal("seal-2", "snap-1", "token-2")); err != nil {
			t.Fatalf("CreateSeal() #2 error = %v", err)
		}

		if seal, err := store.GetActiveSealByToken(ctx, "token-1"); err != nil || seal != nil {
			t.Errorf("old token still resolves: seal=%v err=%v", seal, err)
		}
		seal, err := store.GetActiveSealByToken(ctx, "token-2")
		if err != nil {
			t.Fatalf("GetActiveSealByToken() error = %v", err)
		}
		if seal == nil || seal.ID != "seal-2" {
			t.Errorf("active seal = %+v, want seal-2", seal)
		}
	})

	t.Run("access tracking increments count and timestamp", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		seedSnapshot(t, store, "snap-1")
		if err := store.CreateSeal(ctx, newSeal("seal-1", "snap-1", "token-1")); err != nil {
			t.Fatalf("CreateSeal() error = %v", err)
		}

		at := fixedTime().Add(time.Hour)
		if err := store.TrackQRAccess(ctx, "seal-1", at); err != nil {
			t.Fatalf("TrackQRAccess() error = %v", err)
		}

		seal, err := store.GetActiveSealForSnapshot(ctx, "snap-1")
		if err != nil {
			t.Fatalf("GetActiveSealForSnapshot() error = %v", err)
		}
		if seal.QRAccessCount != 1 {
			t.Errorf("access count = %d, want 1", seal.QRAccessCount)
		}
		if !seal.QRLastAccessedAt.Equal(at) {
			t.Errorf("last accessed = %v, want %v", seal.QRLastAccessedAt, at)
		}
	})
}

func TestSQLiteStore_DashboardStats(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)

	docs := []*model.Document{
		{ID: "doc-1", Status: model.DocStatusLocked, Locked: true, CreatedAt: fixedTime(), UpdatedAt: fixedTime()},
		{ID: "doc-2", Status: model.DocStatusSigned, CreatedAt: fixedTime(), UpdatedAt: fixedTime()},
		{ID: "doc-3", Status: model.DocStatusPending, CreatedAt: fixedTime(), UpdatedAt: fixedTime()},
	}
	for _, doc := range docs {
		if err := store.PutDocument(ctx, doc); err != nil {
			t.Fatalf("PutDocument(%s) error = %v", doc.ID, err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := store.AppendEvent(ctx, "doc-1", func(position int64, prevHash string) (*model.SignatureEvent, error) {
			return testEvent("doc-1", position, prevHash), nil
		}); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
	}
	if err := store.MarkEventsVerified(ctx, "doc-1"); err != nil {
		t.Fatalf("MarkEventsVerified() error = %v", err)
	}

	stats, err := store.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("DashboardStats() error = %v", err)
	}
	if stats.TotalDocuments != 3 {
		t.Errorf("TotalDocuments = %d, want 3", stats.TotalDocuments)
	}
	// SIGNED and LOCKED both count as signed.
	if stats.SignedDocuments != 2 {
		t.Errorf("SignedDocuments = %d, want 2", stats.SignedDocuments)
	}
	if stats.LockedDocuments != 1 {
		t.Errorf("LockedDocuments = %d, want 1", stats.LockedDocuments)
	}
	if stats.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", stats.TotalEvents)
	}
	if stats.VerifiedEvents != 3 {
		t.Errorf("VerifiedEvents = %d, want 3", stats.VerifiedEvents)
	}
	if stats.StatusCounts[model.DocStatusPending] != 1 {
		t.Errorf("StatusCounts[PENDING] = %d, want 1", stats.StatusCounts[model.DocStatusPending])
	}
	if len(stats.RecentEvents) != 3 {
		t.Errorf("RecentEvents = %d, want 3", len(stats.RecentEvents))
	}
}
