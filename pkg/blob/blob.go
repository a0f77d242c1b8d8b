// Package blob retrieves raw instrument files from a blob store.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Fetcher opens a blob by identifier. The caller must close the returned
// reader.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (io.ReadCloser, error)
}

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob not found")

// ErrTooLarge is returned when a blob exceeds the configured size limit.
var ErrTooLarge = errors.New("blob exceeds size limit")

// RetrievalError reports a failed fetch.
type RetrievalError struct {
	ID         string
	StatusCode int
	Err        error
}

func (e *RetrievalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("retrieving blob %s: status %d: %v", e.ID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("retrieving blob %s: %v", e.ID, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// DirStore serves blobs from files in a local directory, named by id.
type DirStore struct {
	dir string
}

// NewDirStore creates a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

// Fetch opens the file named id inside the store's directory.
func (s *DirStore) Fetch(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RetrievalError{ID: id, Err: err}
	}
	if !filepath.IsLocal(id) {
		return nil, &RetrievalError{ID: id, Err: errors.New("id must be a relative path inside the store")}
	}

	f, err := os.Open(filepath.Join(s.dir, id)) // #nosec G304 -- confined to the store directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &RetrievalError{ID: id, Err: ErrNotFound}
		}
		return nil, &RetrievalError{ID: id, Err: err}
	}
	return f, nil
}

// limitedBody fails reads past max bytes instead of truncating silently.
type limitedBody struct {
	rc     io.ReadCloser
	id     string
	remain int64
	cancel context.CancelFunc
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remain >= 0 {
		if b.remain == 0 {
			// One probe byte tells an exact fit from an overrun.
			var probe [1]byte
			n, err := b.rc.Read(probe[:])
			if n > 0 {
				return 0, &RetrievalError{ID: b.id, Err: ErrTooLarge}
			}
			return 0, err
		}
		if int64(len(p)) > b.remain {
			p = p[:b.remain]
		}
	}

	n, err := b.rc.Read(p)
	if b.remain >= 0 {
		b.remain -= int64(n)
	}
	return n, err
}

func (b *limitedBody) Close() error {
	err := b.rc.Close()
	if b.cancel != nil {
		b.cancel()
	}
	return err
}
