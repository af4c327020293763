package envelope

import (
	"context"
	"io"
)

// Output describes one artifact a run produced (spec §3 Manifest,
// §4.8 step 3).
type Output struct {
	Size     *int64
	Checksum *string
	MimeType *string
	Name     string
	Type     string
	Ref      string
}

// Validate enforces the one manifest-level rule the spec names for
// outputs: a non-empty ref.
func (o Output) Validate() error {
	if o.Ref == "" {
		return ErrEmptyOutputRef
	}
	return nil
}

// ArtifactStore persists run artifacts (logs, large outputs, replay
// bundles) out of line from the manifest row, returning an opaque ref
// the manifest stores instead of the bytes themselves.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) (ref string, err error)
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
}
