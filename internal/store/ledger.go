package store

import (
	"context"
	"database/sql"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/2023lic14/momentmcp/internal/model"
)

// ArtifactLedger is a best-effort SQLite record of generated audio
// artifacts. It backs the optional post-processing hook; the broker runs
// fine without it.
type ArtifactLedger struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewArtifactLedger(path string) *ArtifactLedger {
	return &ArtifactLedger{path: path}
}

func (l *ArtifactLedger) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", l.path)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return err
	}

	schema := `
CREATE TABLE IF NOT EXISTS artifacts (
  artifact_id INTEGER PRIMARY KEY AUTOINCREMENT,
  tool TEXT NOT NULL,
  path TEXT NOT NULL,
  size_bytes INTEGER NOT NULL DEFAULT 0,
  mime_type TEXT NOT NULL DEFAULT '',
  model_id TEXT NOT NULL DEFAULT '',
  prompt TEXT NOT NULL DEFAULT '',
  created_unix INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_artifacts_tool ON artifacts(tool);
CREATE INDEX IF NOT EXISTS idx_artifacts_created ON artifacts(created_unix);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return err
	}

	l.db = db
	return nil
}

// Record inserts one artifact row.
func (l *ArtifactLedger) Record(ctx context.Context, artifact model.Artifact) error {
	db, err := l.ensureDB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(
		ctx,
		`INSERT INTO artifacts(tool, path, size_bytes, mime_type, model_id, prompt, created_unix)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		artifact.Tool,
		artifact.Path,
		artifact.SizeBytes,
		artifact.MimeType,
		artifact.ModelID,
		snippet(artifact.Prompt, 2000),
		artifact.CreatedUnix,
	)
	return err
}

// Recent returns up to limit artifacts, newest first.
func (l *ArtifactLedger) Recent(ctx context.Context, limit int) ([]model.Artifact, error) {
	db, err := l.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 20
	}
	rows, err := db.QueryContext(
		ctx,
		`SELECT tool, path, size_bytes, mime_type, model_id, prompt, created_unix
		 FROM artifacts ORDER BY artifact_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []model.Artifact
	for rows.Next() {
		var a model.Artifact
		if err := rows.Scan(&a.Tool, &a.Path, &a.SizeBytes, &a.MimeType, &a.ModelID, &a.Prompt, &a.CreatedUnix); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (l *ArtifactLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

func (l *ArtifactLedger) ensureDB(ctx context.Context) (*sql.DB, error) {
	l.mu.Lock()
	db := l.db
	l.mu.Unlock()
	if db != nil {
		return db, nil
	}
	if err := l.Init(ctx); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db, nil
}

func snippet(text string, max int) string {
	if max > 0 && len(text) > max {
		return text[:max]
	}
	return text
}
