package domain

import "time"

// Publication is the audit record written after a post reaches the
// network: where it landed and what was measured along the way.
type Publication struct {
	PostID        string
	URI           string
	CID           string
	ImageBytes    int64
	Width         uint32
	Height        uint32
	AspectWidth   uint32
	AspectHeight  uint32
	PublishTimeMS int64
	CreatedAt     time.Time
}
