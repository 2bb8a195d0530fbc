// Package planner splits an object into contiguous, non-overlapping parts.
package planner

import (
	"fmt"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Part describes one contiguous byte range of an object.
type Part struct {
	Number int // 1-based
	Offset int64
	Length int64
}

// End returns the offset one past the last byte of the part.
func (p Part) End() int64 {
	return p.Offset + p.Length
}

// Plan is the ordered part layout of an object.
type Plan struct {
	TotalSize int64
	PartSize  int64
	Parts     []Part
}

// Multipart reports whether the object needs more than one request.
func (p *Plan) Multipart() bool {
	return len(p.Parts) > 1
}

// New plans the parts of an object of totalSize bytes.
//
// The effective part size is the larger of partSize and the smallest size
// that keeps the part count within limits.MaxParts. The last part carries the
// remainder.
func New(totalSize, partSize int64, limits transfertypes.PartLimits) (*Plan, error) {
	if totalSize <= 0 {
		return nil, invalid("object size must be positive, got %d", totalSize)
	}
	if err := validatePartSize(partSize, limits); err != nil {
		return nil, err
	}

	size := partSize
	if limits.MaxParts > 0 {
		if minSize := ceilDiv(totalSize, int64(limits.MaxParts)); minSize > size {
			size = minSize
		}
	}
	if limits.MaxPartSize > 0 && size > limits.MaxPartSize {
		return nil, invalid("object of %d bytes needs parts of %d bytes, above the maximum of %d",
			totalSize, size, limits.MaxPartSize)
	}

	count := ceilDiv(totalSize, size)
	parts := make([]Part, count)
	for i := range parts {
		offset := int64(i) * size
		length := size
		if remaining := totalSize - offset; remaining < length {
			length = remaining
		}
		parts[i] = Part{Number: i + 1, Offset: offset, Length: length}
	}

	return &Plan{TotalSize: totalSize, PartSize: size, Parts: parts}, nil
}

// Cursor yields fixed size parts for a source whose length is unknown.
type Cursor struct {
	partSize int64
	maxParts int
	next     int
}

// Streaming returns a cursor producing parts of partSize bytes.
func Streaming(partSize int64, limits transfertypes.PartLimits) (*Cursor, error) {
	if err := validatePartSize(partSize, limits); err != nil {
		return nil, err
	}
	return &Cursor{partSize: partSize, maxParts: limits.MaxParts, next: 1}, nil
}

// PartSize returns the size of every part but the last.
func (c *Cursor) PartSize() int64 {
	return c.partSize
}

// Next returns the next part. Its Length is the maximum length; the caller
// shortens the final part once the source is exhausted.
func (c *Cursor) Next() (Part, error) {
	if c.maxParts > 0 && c.next > c.maxParts {
		return Part{}, errors.NewError("plan", errors.ErrTooManyParts).
			WithMessage(fmt.Sprintf("source exceeds %d parts of %d bytes", c.maxParts, c.partSize))
	}
	p := Part{Number: c.next, Offset: int64(c.next-1) * c.partSize, Length: c.partSize}
	c.next++
	return p, nil
}

func validatePartSize(partSize int64, limits transfertypes.PartLimits) error {
	if partSize <= 0 {
		return invalid("part size must be positive, got %d", partSize)
	}
	if limits.MinPartSize > 0 && partSize < limits.MinPartSize {
		return invalid("part size %d is below the minimum of %d", partSize, limits.MinPartSize)
	}
	if limits.MaxPartSize > 0 && partSize > limits.MaxPartSize {
		return invalid("part size %d is above the maximum of %d", partSize, limits.MaxPartSize)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.NewError("plan", errors.ErrInvalidInput).WithMessage(fmt.Sprintf(format, args...))
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
