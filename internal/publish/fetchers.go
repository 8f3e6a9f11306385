package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/halcyonlabs/skypost/internal/domain"
	"github.com/halcyonlabs/skypost/internal/library"
	"github.com/halcyonlabs/skypost/internal/storage"
)

// LibraryFetcher reads queued images from the local library directory.
type LibraryFetcher struct {
	Library *library.Library
}

func (f LibraryFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Library == nil {
		return nil, errors.New("library is required")
	}
	if !strings.EqualFold(req.SourceType, domain.SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Library.Read(ctx, req.ObjectKey)
}

// ObjectStoreFetcher reads images that were staged via presigned upload.
type ObjectStoreFetcher struct {
	Storage *storage.Client
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.EqualFold(req.SourceType, domain.SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadObject(ctx, req.ObjectKey)
}
