package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/halcyonlabs/skypost/internal/bsky"
	"github.com/halcyonlabs/skypost/internal/imgmeta"
)

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

type Request struct {
	PostID     string
	SourceType string
	ObjectKey  string
	Caption    string
	Language   string
	AltText    string
}

// Result describes a completed publication. Dimensions and AspectRatio
// are nil when geometry extraction failed: the post still went out, just
// without the aspect-ratio hint.
type Result struct {
	URI         string
	CID         string
	ImageBytes  int
	Format      imgmeta.Format
	Dimensions  *imgmeta.Dimensions
	AspectRatio *imgmeta.AspectRatio
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Poster interface {
	PublishImage(ctx context.Context, post bsky.ImagePost) (bsky.PostResult, error)
}

// Publisher turns a queued post into a network record: fetch the image
// bytes, derive geometry metadata, scan the caption for hashtag facets,
// and hand the assembled post to the poster.
type Publisher struct {
	logger  *log.Logger
	fetcher Fetcher
	poster  Poster
}

func NewPublisher(logger *log.Logger, fetcher Fetcher, poster Poster) (*Publisher, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if poster == nil {
		return nil, errors.New("poster is required")
	}
	return &Publisher{logger: logger, fetcher: fetcher, poster: poster}, nil
}

func (p *Publisher) Publish(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.PostID) == "" {
		return Result{}, errors.New("post_id is required")
	}
	if strings.TrimSpace(req.Caption) == "" {
		return Result{}, errors.New("caption is required")
	}

	data, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	post := bsky.ImagePost{
		Text:      req.Caption,
		AltText:   req.AltText,
		ImageData: data,
		Facets:    bsky.ScanTags(req.Caption),
	}
	if lang := strings.TrimSpace(req.Language); lang != "" {
		post.Langs = []string{lang}
	}

	result := Result{ImageBytes: len(data), Format: imgmeta.Classify(data)}
	post.ImageMime = mimeForFormat(result.Format)

	// Geometry is best-effort: a failed extraction degrades the post to
	// one without an aspect-ratio hint instead of failing the publish.
	dims, aspect, err := extractGeometry(data)
	if err != nil {
		p.logger.Printf("dimension extraction failed post_id=%s err=%v, posting without aspect ratio", req.PostID, err)
	} else {
		result.Dimensions = dims
		result.AspectRatio = aspect
		post.AspectRatio = &bsky.AspectRatio{Width: aspect.Width, Height: aspect.Height}
	}

	posted, err := p.poster.PublishImage(ctx, post)
	if err != nil {
		return Result{}, fmt.Errorf("publish stage: %w", err)
	}

	result.URI = posted.URI
	result.CID = posted.CID
	return result, nil
}

func extractGeometry(data []byte) (*imgmeta.Dimensions, *imgmeta.AspectRatio, error) {
	dims, err := imgmeta.DetectDimensions(data)
	if err != nil {
		return nil, nil, err
	}
	aspect, err := imgmeta.ReduceAspectRatio(dims.Width, dims.Height)
	if err != nil {
		return nil, nil, err
	}
	return &dims, &aspect, nil
}

func mimeForFormat(format imgmeta.Format) string {
	switch format {
	case imgmeta.FormatWebP:
		return "image/webp"
	case imgmeta.FormatJPEG:
		return "image/jpeg"
	case imgmeta.FormatPNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
