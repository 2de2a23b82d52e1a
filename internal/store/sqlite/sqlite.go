package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/store"
)

// Schema creates the transcript table. It is safe to apply more than once.
const Schema = `
CREATE TABLE IF NOT EXISTS transcript (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	room        TEXT NOT NULL,
	message_id  INTEGER NOT NULL DEFAULT 0,
	sender      TEXT NOT NULL,
	body        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	sent_at     DATETIME,
	fingerprint TEXT,
	recorded_at DATETIME NOT NULL,
	UNIQUE (room, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_transcript_room ON transcript(room, id);
`

// SQLiteStore implements store.Transcript for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Transcript = (*SQLiteStore)(nil)

// New opens the transcript database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup opens the database and runs a setup function before the first ping.
// Tests use it with ":memory:".
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" on one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// ApplySchema creates the transcript table if needed.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record stores messages in one transaction. Messages seen before, by server id
// or by timestamp, sender and body, are ignored.
func (s *SQLiteStore) Record(ctx context.Context, room string, msgs ...core.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transcript (room, message_id, sender, body, kind, sent_at, fingerprint, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	recordedAt := s.now().UTC()
	added := 0
	for _, m := range msgs {
		var sentAt sql.NullTime
		if m.HasTimestamp() {
			sentAt = sql.NullTime{Time: m.SentAt.UTC(), Valid: true}
		}
		kind := m.Kind
		if kind == "" {
			kind = core.KindChat
		}

		res, err := stmt.ExecContext(ctx, room, m.ID, m.DisplayName(), m.Body, string(kind), sentAt, fingerprint(m), recordedAt)
		if err != nil {
			return 0, fmt.Errorf("insert message: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return added, nil
}

// List returns the last limit entries of a room, oldest first.
func (s *SQLiteStore) List(ctx context.Context, room string, limit int) ([]store.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, room, message_id, sender, body, kind, sent_at, recorded_at
		FROM transcript
		WHERE room = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var entries []store.Entry
	for rows.Next() {
		var (
			e      store.Entry
			kind   string
			sentAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Room, &e.MessageID, &e.Sender, &e.Body, &kind, &sentAt, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = core.Kind(kind)
		if sentAt.Valid {
			e.SentAt = sentAt.Time
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	slices.Reverse(entries)
	return entries, nil
}

// Rooms lists rooms with at least one entry, most recently active first.
func (s *SQLiteStore) Rooms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room FROM transcript
		GROUP BY room
		ORDER BY MAX(id) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// fingerprint identifies a message across history reloads. Messages with
// neither a server id nor a timestamp get none and are always recorded.
func fingerprint(m core.Message) sql.NullString {
	switch {
	case m.ID > 0:
		return sql.NullString{String: "id:" + strconv.FormatInt(m.ID, 10), Valid: true}
	case m.HasTimestamp():
		return sql.NullString{
			String: "ts:" + strconv.FormatInt(m.SentAt.UnixMilli(), 10) + ":" + m.DisplayName() + ":" + m.Body,
			Valid:  true,
		}
	default:
		return sql.NullString{}
	}
}
