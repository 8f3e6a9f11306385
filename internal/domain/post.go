package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	PostStatusQueued     = "queued"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"

	// MaxCaptionGraphemes is the posting service's text length ceiling.
	MaxCaptionGraphemes = 300
)

type CreatePostRequest struct {
	SourceType string `json:"source_type"`
	ObjectKey  string `json:"object_key,omitempty"`
	Caption    string `json:"caption"`
	Language   string `json:"language,omitempty"`
	AltText    string `json:"alt_text,omitempty"`
}

type Post struct {
	ID           string
	Status       string
	SourceType   string
	ObjectKey    string
	Caption      string
	Language     string
	AltText      string
	PublishedURI string
	PublishedCID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r CreatePostRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if strings.TrimSpace(r.Caption) == "" {
		return errors.New("caption is required")
	}
	if utf8.RuneCountInString(r.Caption) > MaxCaptionGraphemes {
		return fmt.Errorf("caption exceeds %d characters", MaxCaptionGraphemes)
	}
	return nil
}
