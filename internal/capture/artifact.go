package capture

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultFilenamePattern names downloaded recordings.
const DefaultFilenamePattern = "{app}-recording.{ext}"

// Artifact is one finished recording held in memory.
type Artifact struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Data      []byte        `json:"-"`
	MimeType  string        `json:"mime_type"`
	Ext       string        `json:"ext"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Size returns the artifact length in bytes.
func (a *Artifact) Size() int {
	return len(a.Data)
}

// HumanSize returns the artifact size for display, e.g. "1.2 MB".
func (a *Artifact) HumanSize() string {
	return humanize.Bytes(uint64(len(a.Data)))
}

// Filename expands pattern for this artifact. Supported placeholders are
// {app}, {ext}, {id} and {time} (creation time as 20060102-150405).
func (a *Artifact) Filename(pattern, app string) string {
	if pattern == "" {
		pattern = DefaultFilenamePattern
	}
	r := strings.NewReplacer(
		"{app}", app,
		"{ext}", a.Ext,
		"{id}", strings.ToLower(a.ID),
		"{time}", a.CreatedAt.Format("20060102-150405"),
	)
	return r.Replace(pattern)
}
