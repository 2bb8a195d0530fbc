package transfertypes

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ResumeTokenVersion is the current serialization version of ResumeToken.
const ResumeTokenVersion = 1

// CompletedPart is a part that finished before the transfer was paused.
type CompletedPart struct {
	Number int    `json:"number"`
	Size   int64  `json:"size"`
	Token  string `json:"token,omitempty"`
}

// ResumeToken carries what is needed to continue a paused transfer, possibly
// in another process: the remote upload identifier and the parts that already
// completed.
type ResumeToken struct {
	Version   int             `json:"version"`
	Direction Direction       `json:"direction"`
	Bucket    string          `json:"bucket"`
	Key       string          `json:"key"`
	UploadID  string          `json:"upload_id,omitempty"`
	Path      string          `json:"path,omitempty"`
	PartSize  int64           `json:"part_size"`
	TotalSize int64           `json:"total_size"`
	ETag      string          `json:"etag,omitempty"`
	Parts     []CompletedPart `json:"parts"`
}

// CompletedBytes sums the sizes of the completed parts.
func (t *ResumeToken) CompletedBytes() int64 {
	var n int64
	for _, p := range t.Parts {
		n += p.Size
	}
	return n
}

// Validate checks that the token is internally consistent.
func (t *ResumeToken) Validate() error {
	if t.Version != ResumeTokenVersion {
		return fmt.Errorf("unsupported resume token version %d", t.Version)
	}
	if t.Direction != DirectionUpload && t.Direction != DirectionDownload {
		return fmt.Errorf("unknown direction %q", t.Direction)
	}
	if t.Bucket == "" || t.Key == "" {
		return fmt.Errorf("resume token has no bucket or key")
	}
	if t.Direction == DirectionUpload && t.UploadID == "" {
		return fmt.Errorf("upload resume token has no upload id")
	}
	if t.PartSize <= 0 {
		return fmt.Errorf("invalid part size %d", t.PartSize)
	}
	seen := make(map[int]bool, len(t.Parts))
	for _, p := range t.Parts {
		if p.Number < 1 || seen[p.Number] {
			return fmt.Errorf("invalid or duplicate part number %d", p.Number)
		}
		seen[p.Number] = true
	}
	return nil
}

// Marshal encodes the token as JSON with parts in ascending order.
func (t *ResumeToken) Marshal() ([]byte, error) {
	out := *t
	out.Parts = append([]CompletedPart(nil), t.Parts...)
	sort.Slice(out.Parts, func(i, j int) bool { return out.Parts[i].Number < out.Parts[j].Number })
	return json.Marshal(&out)
}

// UnmarshalResumeToken decodes and validates a token produced by Marshal.
func UnmarshalResumeToken(data []byte) (*ResumeToken, error) {
	var t ResumeToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode resume token: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
