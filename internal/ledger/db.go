// Package ledger is the durable relational store: one repository per
// entity, each mutating operation wrapped in a single transaction, backed
// by an embedded file-based SQLite database (modernc.org/sqlite, a pure-Go
// driver requiring no cgo — the same driver the teacher already pulls in
// for its one-off podcast-addict-backup read, here promoted to the
// system's primary store).
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger owns the single *sql.DB handle shared by every repository. Per
// spec.md §4.1 ("a single shared session is not safe across threads"),
// each repository method opens its own short-lived transaction rather than
// holding one across calls.
type Ledger struct {
	db *sql.DB

	Media          *MediaRepo
	Jobs           *JobRepo
	Playlists      *PlaylistRepo
	PlaylistVideos *PlaylistVideoRepo
	Analytics      *AnalyticsRepo
	Transcriptions *TranscriptionRepo
}

// Open creates (or reopens) the ledger file at path, applying the schema
// idempotently, and wires up every repository against the shared handle.
// Following the adverant-...VideoAgent pool repo's storage_manager.go
// pattern (one big initSchema() string executed at construction time,
// re-adapted here from Postgres JSONB-columns to SQLite + FTS5), the
// schema is a single logical model with no separate migration files —
// resolving spec.md §9's note about the source's duplicate Alembic
// migrations.
func Open(path string) (*Ledger, error) {
	dsn := (&url.URL{Scheme: "file", Opaque: path, RawQuery: "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// SQLite allows only one writer; a pure-Go driver without its own
	// connection pool discipline can otherwise hand out a second
	// connection mid-write and deadlock the busy_timeout wait.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}

	l := &Ledger{db: db}
	l.Media = &MediaRepo{db: db}
	l.Jobs = &JobRepo{db: db}
	l.Playlists = &PlaylistRepo{db: db}
	l.PlaylistVideos = &PlaylistVideoRepo{db: db}
	l.Analytics = &AnalyticsRepo{db: db}
	l.Transcriptions = &TranscriptionRepo{db: db}
	return l, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS media_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path TEXT NOT NULL UNIQUE,
	file_name TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	file_hash TEXT NOT NULL,
	media_type TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	file_device INTEGER,
	file_inode INTEGER,
	file_identifier TEXT UNIQUE,
	source_url TEXT,
	source_platform TEXT,
	source_id TEXT,
	title TEXT,
	description TEXT,
	uploader TEXT,
	uploader_id TEXT,
	upload_date TEXT,
	view_count INTEGER,
	like_count INTEGER,
	duration REAL,
	language TEXT,
	thumbnail_url TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(file_device, file_inode)
);

CREATE TABLE IF NOT EXISTS processing_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	media_file_id INTEGER REFERENCES media_files(id),
	job_type TEXT NOT NULL,
	input_path TEXT NOT NULL,
	output_path TEXT,
	parameters TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	started_at DATETIME,
	completed_at DATETIME,
	duration_seconds REAL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 3,
	worker_pid INTEGER
);
CREATE INDEX IF NOT EXISTS idx_processing_jobs_status ON processing_jobs(status, id);
CREATE INDEX IF NOT EXISTS idx_processing_jobs_media_file ON processing_jobs(media_file_id, status);

CREATE TABLE IF NOT EXISTS playlists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	playlist_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT,
	uploader TEXT,
	uploader_id TEXT,
	source_url TEXT NOT NULL,
	source_platform TEXT NOT NULL DEFAULT 'youtube',
	video_count INTEGER,
	view_count INTEGER,
	thumbnail_url TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(playlist_id, source_platform)
);

CREATE TABLE IF NOT EXISTS playlist_videos (
	playlist_id INTEGER NOT NULL REFERENCES playlists(id),
	media_file_id INTEGER NOT NULL REFERENCES media_files(id),
	position INTEGER NOT NULL,
	video_title TEXT,
	PRIMARY KEY (playlist_id, position)
);

CREATE TABLE IF NOT EXISTS transcriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	media_file_id INTEGER NOT NULL REFERENCES media_files(id),
	language TEXT NOT NULL,
	duration REAL NOT NULL,
	processing_time REAL NOT NULL,
	model_used TEXT NOT NULL,
	segments_json TEXT NOT NULL,
	full_text TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_media_file ON transcriptions(media_file_id);

CREATE VIRTUAL TABLE IF NOT EXISTS transcriptions_fts USING fts5(
	full_text,
	content='transcriptions',
	content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS transcriptions_ai AFTER INSERT ON transcriptions BEGIN
	INSERT INTO transcriptions_fts(rowid, full_text) VALUES (new.id, new.full_text);
END;
CREATE TRIGGER IF NOT EXISTS transcriptions_ad AFTER DELETE ON transcriptions BEGIN
	INSERT INTO transcriptions_fts(transcriptions_fts, rowid, full_text) VALUES('delete', old.id, old.full_text);
END;
CREATE TRIGGER IF NOT EXISTS transcriptions_au AFTER UPDATE ON transcriptions BEGIN
	INSERT INTO transcriptions_fts(transcriptions_fts, rowid, full_text) VALUES('delete', old.id, old.full_text);
	INSERT INTO transcriptions_fts(rowid, full_text) VALUES (new.id, new.full_text);
END;

CREATE TABLE IF NOT EXISTS analytics_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	media_file_id INTEGER,
	processing_job_id INTEGER,
	event_data TEXT NOT NULL DEFAULT '{}',
	timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_analytics_events_type ON analytics_events(event_type, timestamp);
`
	_, err := db.Exec(schema)
	return err
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
