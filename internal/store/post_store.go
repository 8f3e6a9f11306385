package store

import (
	"context"

	"github.com/halcyonlabs/skypost/internal/domain"
)

type PostStore interface {
	Create(ctx context.Context, post domain.Post) error
	Get(ctx context.Context, id string) (domain.Post, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Post, error)
	MarkPublished(ctx context.Context, id, uri, cid string) (domain.Post, error)
}

type PublicationStore interface {
	CreatePublication(ctx context.Context, pub domain.Publication) error
}
