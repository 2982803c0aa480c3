// Package content serves the generated documentation site from a local
// directory or an S3 bucket.
package content

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when no object exists under a name
var ErrNotFound = errors.New("content not found")

// Object is one file of the generated site
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
	ModTime     time.Time
}

// Source gives access to the generated site. Names are slash separated,
// relative and clean ("guides/setup/index.html").
type Source interface {
	Open(ctx context.Context, name string) (*Object, error)
	List(ctx context.Context) ([]string, error)
}
