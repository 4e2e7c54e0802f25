package storage

import (
	"context"
	"fmt"

	"scrapeflow/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema contains the DDL for the archive tables.
const Schema = `
CREATE TABLE IF NOT EXISTS articles (
    id            SERIAL PRIMARY KEY,
    task_id       TEXT NOT NULL,
    url           TEXT NOT NULL UNIQUE,
    domain        TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    content       TEXT NOT NULL DEFAULT '',
    author        TEXT NOT NULL DEFAULT '',
    publish_date  TEXT NOT NULL DEFAULT '',
    language      TEXT NOT NULL DEFAULT '',
    attempt_count INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_articles_domain ON articles(domain);

CREATE TABLE IF NOT EXISTS article_refs (
    article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    kind       TEXT NOT NULL,
    position   INTEGER NOT NULL,
    ref        TEXT NOT NULL,
    PRIMARY KEY (article_id, kind, position)
);
`

// PostgresArchive keeps a durable copy of completed extractions. The Redis
// task records expire; the archive is what survives for downstream use.
type PostgresArchive struct {
	db *pgxpool.Pool
}

func NewPostgresArchive(ctx context.Context, connStr string) (*PostgresArchive, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresArchive{db: db}, nil
}

// EnsureSchema creates the archive tables when they do not exist yet.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: apply schema: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (a *PostgresArchive) Ping(ctx context.Context) error {
	return a.db.Ping(ctx)
}

func (a *PostgresArchive) Close() {
	a.db.Close()
}

// Record archives a completed task's extraction within one transaction.
// Implements scraper.ResultSink.
func (a *PostgresArchive) Record(ctx context.Context, t *domain.Task) error {
	if t.State != domain.StateCompleted || t.Result == nil {
		return nil
	}
	r := t.Result

	tx, err := a.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	var articleID int
	err = tx.QueryRow(ctx,
		`INSERT INTO articles (task_id, url, domain, title, content, author, publish_date, language, attempt_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (url) DO UPDATE SET
		   task_id = EXCLUDED.task_id, title = EXCLUDED.title, content = EXCLUDED.content,
		   author = EXCLUDED.author, publish_date = EXCLUDED.publish_date,
		   language = EXCLUDED.language, attempt_count = EXCLUDED.attempt_count,
		   updated_at = NOW()
		 RETURNING id`,
		t.ID, t.URL, t.Domain, r.Title, r.Content, r.Author, r.PublishDate, r.Language, t.AttemptCount,
	).Scan(&articleID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM article_refs WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	batch := &pgx.Batch{}
	queueRefs := func(kind string, refs []string) {
		for i, ref := range refs {
			batch.Queue(
				`INSERT INTO article_refs (article_id, kind, position, ref) VALUES ($1, $2, $3, $4)`,
				articleID, kind, i, ref)
		}
	}
	queueRefs("category", r.Categories)
	queueRefs("image", r.Media.Images)
	queueRefs("video", r.Media.Videos)
	queueRefs("embed", r.Media.Embeds)
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}
