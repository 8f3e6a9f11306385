package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/halcyonlabs/skypost/internal/domain"
	_ "github.com/lib/pq"
)

const postSchemaSQL = `
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	source_type TEXT NOT NULL,
	object_key TEXT NOT NULL,
	caption TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	alt_text TEXT NOT NULL DEFAULT '',
	published_uri TEXT NOT NULL DEFAULT '',
	published_cid TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS publications (
	post_id TEXT NOT NULL,
	uri TEXT NOT NULL,
	cid TEXT NOT NULL,
	image_bytes BIGINT NOT NULL,
	width BIGINT NOT NULL,
	height BIGINT NOT NULL,
	aspect_width BIGINT NOT NULL,
	aspect_height BIGINT NOT NULL,
	publish_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresPostStore struct {
	db *sql.DB
}

func NewPostgresPostStore(ctx context.Context, dsn string) (*PostgresPostStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresPostStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresPostStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postSchemaSQL); err != nil {
		return fmt.Errorf("ensure posts schema: %w", err)
	}
	return nil
}

func (s *PostgresPostStore) Close() error {
	return s.db.Close()
}

func (s *PostgresPostStore) Create(ctx context.Context, post domain.Post) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO posts (id, status, source_type, object_key, caption, language, alt_text, published_uri, published_cid, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		post.ID,
		post.Status,
		post.SourceType,
		post.ObjectKey,
		post.Caption,
		post.Language,
		post.AltText,
		post.PublishedURI,
		post.PublishedCID,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	return nil
}

func (s *PostgresPostStore) Get(ctx context.Context, id string) (domain.Post, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, source_type, object_key, caption, language, alt_text, published_uri, published_cid, created_at, updated_at
		 FROM posts
		 WHERE id = $1`,
		id,
	)

	var post domain.Post
	if err := row.Scan(
		&post.ID,
		&post.Status,
		&post.SourceType,
		&post.ObjectKey,
		&post.Caption,
		&post.Language,
		&post.AltText,
		&post.PublishedURI,
		&post.PublishedCID,
		&post.CreatedAt,
		&post.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Post{}, false, nil
		}
		return domain.Post{}, false, fmt.Errorf("query post: %w", err)
	}

	return post, true, nil
}

func (s *PostgresPostStore) UpdateStatus(ctx context.Context, id, status string) (domain.Post, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE posts
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		now,
		id,
	)
	if err != nil {
		return domain.Post{}, fmt.Errorf("update post status: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresPostStore) MarkPublished(ctx context.Context, id, uri, cid string) (domain.Post, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE posts
		 SET status = $1, published_uri = $2, published_cid = $3, updated_at = $4
		 WHERE id = $5`,
		domain.PostStatusPublished,
		uri,
		cid,
		now,
		id,
	)
	if err != nil {
		return domain.Post{}, fmt.Errorf("mark post published: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresPostStore) CreatePublication(ctx context.Context, pub domain.Publication) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO publications (post_id, uri, cid, image_bytes, width, height, aspect_width, aspect_height, publish_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		pub.PostID,
		pub.URI,
		pub.CID,
		pub.ImageBytes,
		int64(pub.Width),
		int64(pub.Height),
		int64(pub.AspectWidth),
		int64(pub.AspectHeight),
		pub.PublishTimeMS,
		pub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert publication: %w", err)
	}
	return nil
}

func (s *PostgresPostStore) mustGet(ctx context.Context, id string) (domain.Post, error) {
	post, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Post{}, err
	}
	if !ok {
		return domain.Post{}, ErrPostNotFound
	}
	return post, nil
}
