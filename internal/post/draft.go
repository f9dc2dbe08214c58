package post

import (
	"fmt"
	"strings"
	"time"
)

type MediaKind string

const (
	MediaImage     MediaKind = "image"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
)

func (k MediaKind) Valid() bool {
	switch k {
	case MediaImage, MediaVideo, MediaAnimation:
		return true
	default:
		return false
	}
}

// Media references a file already uploaded to the platform.
// Handle is the platform file id and is reused for every send.
type Media struct {
	Kind   MediaKind `json:"kind"`
	Handle string    `json:"handle"`
}

func (m *Media) Valid() bool {
	return m != nil && m.Kind.Valid() && strings.TrimSpace(m.Handle) != ""
}

// Draft is the post being assembled by the wizard.
type Draft struct {
	Thumbnail *Media `json:"thumbnail,omitempty"`
	Link      string `json:"link,omitempty"`
	Title     string `json:"title,omitempty"`
}

// Complete reports whether every field needed for a broadcast is set.
func (d *Draft) Complete() bool {
	if d == nil {
		return false
	}
	return d.Thumbnail.Valid() && strings.TrimSpace(d.Link) != "" && strings.TrimSpace(d.Title) != ""
}

// Missing names the first unset field, or "" when the draft is complete.
func (d *Draft) Missing() string {
	switch {
	case d == nil:
		return "draft"
	case !d.Thumbnail.Valid():
		return "thumbnail"
	case strings.TrimSpace(d.Link) == "":
		return "link"
	case strings.TrimSpace(d.Title) == "":
		return "title"
	default:
		return ""
	}
}

func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	cp := *d
	if d.Thumbnail != nil {
		m := *d.Thumbnail
		cp.Thumbnail = &m
	}
	return &cp
}

// ScheduleEntry is a daily repeating broadcast of a snapshotted draft.
type ScheduleEntry struct {
	ID        string    `json:"id"`
	Owner     int64     `json:"owner"`
	Hour      int       `json:"hour"`
	Minute    int       `json:"minute"`
	Timezone  string    `json:"timezone"`
	Draft     Draft     `json:"draft"`
	CreatedAt time.Time `json:"created_at"`
}

// Clock renders the trigger time as HH:MM.
func (e ScheduleEntry) Clock() string {
	return fmt.Sprintf("%02d:%02d", e.Hour, e.Minute)
}
