package sigchain_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/famproject/sigchain/internal/database"
	"github.com/famproject/sigchain/internal/sigchain"
	"github.com/famproject/sigchain/internal/testutil"
)

// newTamperableService builds a Service on an in-memory store while keeping
// the raw database handle, so tests can corrupt rows behind the store's back.
func newTamperableService(t *testing.T) (*sigchain.Service, *sql.DB) {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := sqlDB.Exec(database.Schema()); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}
	store := database.NewSQLiteStoreFromDB(sqlDB)
	t.Cleanup(func() { store.Close() })

	svc := sigchain.NewService(store, testutil.NewTestVault(), testutil.NewTestEncryptor(),
		testutil.StubQRRenderer{}, sigchain.NewNopLogger(), testutil.FixedClock(),
		testutil.NewStubIDGenerator(), testutil.NewStubTokenGenerator(), testutil.TestBaseURL)
	return svc, sqlDB
}

func appendEvents(t *testing.T, svc *sigchain.Service, documentID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := svc.LogEvent(context.Background(), documentID, "SIGNATURE_CREATED", "test",
			testActor, map[string]any{"round": int64(i)}, testReqCtx)
		if err != nil {
			t.Fatalf("LogEvent() #%d error = %v", i+1, err)
		}
	}
}

func TestService_VerifyChain(t *testing.T) {
	ctx := context.Background()

	t.Run("empty chain is valid", func(t *testing.T) {
		svc, _ := testutil.NewTestService(t)
		res, err := svc.VerifyChain(ctx, "doc-none")
		if err != nil {
			t.Fatalf("VerifyChain() error = %v", err)
		}
		if !res.Valid {
			t.Error("empty chain reported invalid")
		}
		if res.BrokenAtPosition != 0 {
			t.Errorf("BrokenAtPosition = %d, want 0", res.BrokenAtPosition)
		}
	})

	t.Run("intact chain is valid", func(t *testing.T) {
		svc, _ := newTamperableService(t)
		appendEvents(t, svc, "doc-1", 5)

		res, err := svc.VerifyChain(ctx, "doc-1")
		if err != nil {
			t.Fatalf("VerifyChain() error = %v", err)
		}
		if !res.Valid {
			t.Errorf("intact chain reported broken at %d: %s", res.BrokenAtPosition, res.Reason)
		}
		if len(res.Events) != 5 {
			t.Errorf("got %d events, want 5", len(res.Events))
		}
	})

	t.Run("detects a tampered payload", func(t *testing.T) {
		svc, db := newTamperableService(t)
		appendEvents(t, svc, "doc-1", 5)

		_, err := db.Exec(`UPDATE signature_events SET payload = '{"round":99}' WHERE document_id = 'doc-1' AND chain_position = 3`)
		if err != nil {
			t.Fatalf("tampering update failed: %v", err)
		}

		res, err := svc.VerifyChain(ctx, "doc-1")
		if err != nil {
			t.Fatalf("VerifyChain() error = %v", err)
		}
		if res.Valid {
			t.Fatal("tampered chain reported valid")
		}
		if res.BrokenAtPosition != 3 {
			t.Errorf("BrokenAtPosition = %d, want 3", res.BrokenAtPosition)
		}
		if res.Reason != "hash mismatch" {
			t.Errorf("Reason = %q, want %q", res.Reason, "hash mismatch")
		}
	})

	t.Run("detects a rewritten stored hash", func(t *testing.T) {
		svc, db := newTamperableService(t)
		appendEvents(t, svc, "doc-1", 3)

		// Forging event 2's hash breaks the link from event 3.
		_, err := db.Exec(`UPDATE signature_events SET event_hash = 'f00d' WHERE document_id = 'doc-1' AND chain_position = 2`)
		if err != nil {
			t.Fatalf("tampering update failed: %v", err)
		}

		res, err := svc.VerifyChain(ctx, "doc-1")
		if err != nil {
			t.Fatalf("VerifyChain() error = %v", err)
		}
		if res.Valid {
			t.Fatal("tampered chain reported valid")
		}
		if res.BrokenAtPosition != 2 {
			t.Errorf("BrokenAtPosition = %d, want 2", res.BrokenAtPosition)
		}
	})

	t.Run("detects a deleted row", func(t *testing.T) {
		svc, db := newTamperableService(t)
		appendEvents(t, svc, "doc-1", 5)

		_, err := db.Exec(`DELETE FROM signature_events WHERE document_id = 'doc-1' AND chain_position = 2`)
		if err != nil {
			t.Fatalf("tampering delete failed: %v", err)
		}

		res, err := svc.VerifyChain(ctx, "doc-1")
		if err != nil {
			t.Fatalf("VerifyChain() error = %v", err)
		}
		if res.Valid {
			t.Fatal("chain with deleted row reported valid")
		}
		if res.Reason != "link mismatch" {
			t.Errorf("Reason = %q, want %q", res.Reason, "link mismatch")
		}
	})
}

func TestService_MarkChainVerified(t *testing.T) {
	ctx := context.Background()

	t.Run("flips the verified flag when the chain holds", func(t *testing.T) {
		svc, _ := newTamperableService(t)
		appendEvents(t, svc, "doc-1", 3)

		res, err := svc.MarkChainVerified(ctx, "doc-1")
		if err != nil {
			t.Fatalf("MarkChainVerified() error = %v", err)
		}
		if !res.Valid {
			t.Fatal("chain reported broken")
		}

		events, err := svc.AuditTrail(ctx, "doc-1")
		if err != nil {
			t.Fatalf("AuditTrail() error = %v", err)
		}
		for _, ev := range events {
			if !ev.Verified {
				t.Errorf("event at position %d not marked verified", ev.ChainPosition)
			}
		}
	})

	t.Run("reports ChainBrokenError and touches nothing on a broken chain", func(t *testing.T) {
		svc, db := newTamperableService(t)
		appendEvents(t, svc, "doc-1", 3)

		if _, err := db.Exec(`UPDATE signature_events SET payload = '{}' WHERE document_id = 'doc-1' AND chain_position = 1`); err != nil {
			t.Fatalf("tampering update failed: %v", err)
		}

		_, err := svc.MarkChainVerified(ctx, "doc-1")
		var broken *sigchain.ChainBrokenError
		if !errors.As(err, &broken) {
			t.Fatalf("MarkChainVerified() error = %v, want ChainBrokenError", err)
		}
		if broken.Position != 1 {
			t.Errorf("broken position = %d, want 1", broken.Position)
		}

		events, err := svc.AuditTrail(ctx, "doc-1")
		if err != nil {
			t.Fatalf("AuditTrail() error = %v", err)
		}
		for _, ev := range events {
			if ev.Verified {
				t.Errorf("event at position %d marked verified despite broken chain", ev.ChainPosition)
			}
		}
	})
}
