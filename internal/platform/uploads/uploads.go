// Package uploads stages user-supplied files in a dedicated directory so they
// can be inspected before anything is accepted into the record store.
// A staged file is a candidate: the caller either promotes its bytes somewhere
// else or discards it.
package uploads

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medjson/internal/platform/filestore"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
)

// DefaultMaxFileSize is the upload limit when none is configured (5 MB).
const DefaultMaxFileSize = 5 * 1024 * 1024

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Candidate describes a staged upload.
type Candidate struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash"`
	StagedAt     time.Time `json:"staged_at"`
}

// Stager is the contract the upload flow depends on.
type Stager interface {
	Stage(ctx context.Context, originalName string, content io.Reader) (*Candidate, error)
	Read(ctx context.Context, c *Candidate) ([]byte, error)
	Discard(ctx context.Context, c *Candidate) error
}

// ---------------------------------------------------------------------------
// Filesystem implementation
// ---------------------------------------------------------------------------

// FileStager keeps candidates as upload_<uuid>.json documents in a
// filestore.Store of their own, separate from the record store.
type FileStager struct {
	store   *filestore.Store
	maxSize int64
	now     func() time.Time
}

// NewFileStager returns a stager writing into store. maxSize <= 0 selects
// DefaultMaxFileSize.
func NewFileStager(store *filestore.Store, maxSize int64) *FileStager {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &FileStager{
		store:   store,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// MaxSize returns the configured size limit in bytes.
func (s *FileStager) MaxSize() int64 { return s.maxSize }

// Dir returns the staging directory.
func (s *FileStager) Dir() string { return s.store.Dir() }

// Stage reads content up to the size limit, hashes it and writes it under a
// fresh unique name. Oversized content is rejected before anything is written.
// Storage failures are *filestore.IOError.
func (s *FileStager) Stage(ctx context.Context, originalName string, content io.Reader) (*Candidate, error) {
	if strings.TrimSpace(originalName) == "" {
		return nil, ErrMissingFileName
	}

	data, err := io.ReadAll(io.LimitReader(content, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, ErrFileTooLarge
	}

	id := uuid.NewString()
	name, err := s.store.SaveRaw(ctx, "upload_"+id+filestore.Ext, data)
	if err != nil {
		return nil, err
	}

	return &Candidate{
		ID:           id,
		OriginalName: filepath.Base(originalName),
		Path:         filepath.Join(s.store.Dir(), name),
		Size:         int64(len(data)),
		Hash:         fmt.Sprintf("%x", sha256.Sum256(data)),
		StagedAt:     s.now().UTC(),
	}, nil
}

// Read returns the staged bytes of c.
func (s *FileStager) Read(ctx context.Context, c *Candidate) ([]byte, error) {
	return s.store.Load(ctx, filepath.Base(c.Path))
}

// Discard removes the staged file through the store. Discarding twice is not
// an error.
func (s *FileStager) Discard(ctx context.Context, c *Candidate) error {
	return s.store.Delete(ctx, c.Path)
}
