package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/famproject/sigchain/internal/database/migrations"
	"github.com/famproject/sigchain/internal/model"
	"github.com/famproject/sigchain/internal/sigchain"
)

// SQLiteStore implements the sigchain.Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. Exported for tools and tests that need a properly configured
// connection. path can be a file path or ":memory:".
//
// Transactions are opened with BEGIN IMMEDIATE (via _txlock) so a chain
// append takes the write lock before reading the chain tail, instead of
// failing on upgrade when two appends interleave.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would otherwise get its own
	// private database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	return db, nil
}

// Document registry

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, version, status, locked, current_snapshot_id, created_at, updated_at
		FROM documents WHERE id = ?`, id)

	var doc model.Document
	err := row.Scan(&doc.ID, &doc.Name, &doc.Version, &doc.Status, &doc.Locked,
		&doc.CurrentSnapshotID, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding document: %w", err)
	}
	return &doc, nil
}

func (s *SQLiteStore) PutDocument(ctx context.Context, doc *model.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, version, status, locked, current_snapshot_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			status = excluded.status,
			locked = excluded.locked,
			current_snapshot_id = excluded.current_snapshot_id,
			updated_at = excluded.updated_at`,
		doc.ID, doc.Name, doc.Version, doc.Status, doc.Locked,
		doc.CurrentSnapshotID, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetDocumentState(ctx context.Context, id, status string, locked bool, currentSnapshotID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET status = ?, locked = ?, current_snapshot_id = ?, updated_at = ?
		WHERE id = ?`,
		status, locked, currentSnapshotID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating document state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating document state: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// Hash snapshots

func (s *SQLiteStore) CreateSnapshot(ctx context.Context, snap *model.HashSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hash_snapshots (id, document_id, version, hash_algorithm, hash_value, captured_by, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.DocumentID, snap.Version, snap.HashAlgorithm,
		snap.HashValue, snap.CapturedBy, snap.CapturedAt)
	if err != nil {
		return fmt.Errorf("creating hash snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*model.HashSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, version, hash_algorithm, hash_value, captured_by, captured_at
		FROM hash_snapshots WHERE id = ?`, id)

	var snap model.HashSnapshot
	err := row.Scan(&snap.ID, &snap.DocumentID, &snap.Version, &snap.HashAlgorithm,
		&snap.HashValue, &snap.CapturedBy, &snap.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding hash snapshot: %w", err)
	}
	return &snap, nil
}

// Event chain

// AppendEvent atomically reads the chain tail and inserts the event built
// from it, in one immediate transaction:
//  1. Read MAX(chain_position) and the tail's event_hash for the document.
//  2. Invoke build with (position+1, tail hash) to compute the new event.
//  3. Insert the row; the UNIQUE(document_id, chain_position) constraint is
//     the backstop against writers that raced past step 1.
//
// A constraint violation surfaces as sigchain.ErrChainWriteConflict so the
// service layer can rerun the whole sequence.
func (s *SQLiteStore) AppendEvent(ctx context.Context, documentID string, build sigchain.EventBuilder) (*model.SignatureEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var position int64
	var prevHash string
	row := tx.QueryRowContext(ctx, `
		SELECT chain_position, event_hash
		FROM signature_events
		WHERE document_id = ?
		ORDER BY chain_position DESC
		LIMIT 1`, documentID)
	err = row.Scan(&position, &prevHash)
	if errors.Is(err, sql.ErrNoRows) {
		position = 0
		prevHash = ""
	} else if err != nil {
		return nil, fmt.Errorf("reading chain tail: %w", err)
	}

	ev, err := build(position+1, prevHash)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO signature_events (
			document_id, event_type, description, event_at,
			actor_id, actor_name, actor_role,
			payload, event_hash, prev_event_hash, chain_position, verified,
			client_ip, user_agent, session_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.DocumentID, ev.EventType, ev.Description, ev.EventAt,
		ev.ActorID, ev.ActorName, ev.ActorRole,
		ev.Payload, ev.EventHash, ev.PrevEventHash, ev.ChainPosition, ev.Verified,
		ev.ClientIP, ev.UserAgent, ev.SessionID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("position %d already claimed: %w", ev.ChainPosition, sigchain.ErrChainWriteConflict)
		}
		return nil, fmt.Errorf("inserting chain event: %w", err)
	}

	ev.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading event id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return ev, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, documentID string) ([]*model.SignatureEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, event_type, description, event_at,
		       actor_id, actor_name, actor_role,
		       payload, event_hash, prev_event_hash, chain_position, verified,
		       client_ip, user_agent, session_id
		FROM signature_events
		WHERE document_id = ?
		ORDER BY chain_position ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing chain events: %w", err)
	}
	defer rows.Close()

	var events []*model.SignatureEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing chain events: %w", err)
	}
	return events, nil
}

func (s *SQLiteStore) MarkEventsVerified(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE signature_events SET verified = 1 WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("marking events verified: %w", err)
	}
	return nil
}

// Seals

// CreateSeal inserts a seal and deactivates any previously active seal for
// the same snapshot in the same transaction. Old seals stay in history.
func (s *SQLiteStore) CreateSeal(ctx context.Context, seal *model.Seal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE seals SET active = 0 WHERE snapshot_id = ? AND active = 1`, seal.SnapshotID)
	if err != nil {
		return fmt.Errorf("deactivating prior seal: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO seals (
			id, snapshot_id, seal_code, authorized_role, verification_token,
			active, issued_by, issued_at, qr_access_count, qr_last_accessed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)`,
		seal.ID, seal.SnapshotID, seal.SealCode, seal.AuthorizedRole,
		seal.VerificationToken, seal.Active, seal.IssuedBy, seal.IssuedAt)
	if err != nil {
		return fmt.Errorf("inserting seal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetActiveSealByToken(ctx context.Context, token string) (*model.Seal, error) {
	return s.getSeal(ctx, `
		SELECT id, snapshot_id, seal_code, authorized_role, verification_token,
		       active, issued_by, issued_at, qr_access_count, qr_last_accessed_at
		FROM seals WHERE verification_token = ? AND active = 1`, token)
}

func (s *SQLiteStore) GetActiveSealForSnapshot(ctx context.Context, snapshotID string) (*model.Seal, error) {
	return s.getSeal(ctx, `
		SELECT id, snapshot_id, seal_code, authorized_role, verification_token,
		       active, issued_by, issued_at, qr_access_count, qr_last_accessed_at
		FROM seals WHERE snapshot_id = ? AND active = 1`, snapshotID)
}

func (s *SQLiteStore) getSeal(ctx context.Context, query string, arg any) (*model.Seal, error) {
	row := s.db.QueryRowContext(ctx, query, arg)

	var seal model.Seal
	var lastAccessed sql.NullTime
	err := row.Scan(&seal.ID, &seal.SnapshotID, &seal.SealCode, &seal.AuthorizedRole,
		&seal.VerificationToken, &seal.Active, &seal.IssuedBy, &seal.IssuedAt,
		&seal.QRAccessCount, &lastAccessed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding seal: %w", err)
	}
	if lastAccessed.Valid {
		seal.QRLastAccessedAt = lastAccessed.Time
	}
	return &seal, nil
}

func (s *SQLiteStore) TrackQRAccess(ctx context.Context, sealID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE seals
		SET qr_access_count = qr_access_count + 1, qr_last_accessed_at = ?
		WHERE id = ?`, at, sealID)
	if err != nil {
		return fmt.Errorf("tracking QR access: %w", err)
	}
	return nil
}

// Advanced signatures

func (s *SQLiteStore) CreateSignature(ctx context.Context, sig *model.AdvancedSignature) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO advanced_signatures (
			id, document_id, snapshot_id, signer_user_id, signer_name,
			role_at_sign, consent_text, signature_hash,
			client_ip, user_agent, session_id, signed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.DocumentID, sig.SnapshotID, sig.SignerID, sig.SignerName,
		sig.RoleAtSign, sig.ConsentText, sig.SignatureHash,
		sig.ClientIP, sig.UserAgent, sig.SessionID, sig.SignedAt)
	if err != nil {
		return fmt.Errorf("creating advanced signature: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSignatureForSnapshot(ctx context.Context, snapshotID string) (*model.AdvancedSignature, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, snapshot_id, signer_user_id, signer_name,
		       role_at_sign, consent_text, signature_hash,
		       client_ip, user_agent, session_id, signed_at
		FROM advanced_signatures WHERE snapshot_id = ?`, snapshotID)

	var sig model.AdvancedSignature
	err := row.Scan(&sig.ID, &sig.DocumentID, &sig.SnapshotID, &sig.SignerID, &sig.SignerName,
		&sig.RoleAtSign, &sig.ConsentText, &sig.SignatureHash,
		&sig.ClientIP, &sig.UserAgent, &sig.SessionID, &sig.SignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding advanced signature: %w", err)
	}
	return &sig, nil
}

// Dashboard

func (s *SQLiteStore) DashboardStats(ctx context.Context) (*sigchain.DashboardStats, error) {
	stats := &sigchain.DashboardStats{StatusCounts: make(map[string]int64)}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'SIGNED' OR status = 'LOCKED' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN locked = 1 THEN 1 ELSE 0 END), 0)
		FROM documents`)
	if err := row.Scan(&stats.TotalDocuments, &stats.SignedDocuments, &stats.LockedDocuments); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN verified = 1 THEN 1 ELSE 0 END), 0)
		FROM signature_events`)
	if err := row.Scan(&stats.TotalEvents, &stats.VerifiedEvents); err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("grouping document statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("grouping document statuses: %w", err)
		}
		stats.StatusCounts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grouping document statuses: %w", err)
	}

	recent, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, event_type, description, event_at,
		       actor_id, actor_name, actor_role,
		       payload, event_hash, prev_event_hash, chain_position, verified,
		       client_ip, user_agent, session_id
		FROM signature_events
		ORDER BY id DESC
		LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("listing recent events: %w", err)
	}
	defer recent.Close()
	for recent.Next() {
		ev, err := scanEvent(recent)
		if err != nil {
			return nil, err
		}
		stats.RecentEvents = append(stats.RecentEvents, ev)
	}
	if err := recent.Err(); err != nil {
		return nil, fmt.Errorf("listing recent events: %w", err)
	}

	return stats, nil
}

// Path returns the database file path (or ":memory:" for in-memory stores).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the schema to the latest version.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func scanEvent(rows *sql.Rows) (*model.SignatureEvent, error) {
	var ev model.SignatureEvent
	err := rows.Scan(&ev.ID, &ev.DocumentID, &ev.EventType, &ev.Description, &ev.EventAt,
		&ev.ActorID, &ev.ActorName, &ev.ActorRole,
		&ev.Payload, &ev.EventHash, &ev.PrevEventHash, &ev.ChainPosition, &ev.Verified,
		&ev.ClientIP, &ev.UserAgent, &ev.SessionID)
	if err != nil {
		return nil, fmt.Errorf("scanning chain event: %w", err)
	}
	return &ev, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Compile-time check that SQLiteStore implements the sigchain.Store interface
var _ sigchain.Store = (*SQLiteStore)(nil)
