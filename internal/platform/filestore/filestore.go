// Package filestore persists JSON documents as individual files in a single
// directory and enumerates them back. The directory is the whole datastore:
// there is no index, so every listing is a full scan that parses each file.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrExists      = errors.New("document already exists")
	ErrInvalidName = errors.New("invalid document name")
)

// IOError reports a directory or file access failure. It is fatal to the
// request that triggered it.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("filestore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

const (
	// Ext is the suffix a directory entry needs to be treated as a document.
	Ext = ".json"

	recordPrefix = "medical_record_"
	tempPattern  = ".pending-*.tmp"
)

// RecordFileName returns the file name a record with the given id is stored under.
func RecordFileName(id string) string {
	return recordPrefix + id + Ext
}

// StoredFile is a parsed document plus filesystem metadata gathered at read
// time. None of the metadata is persisted.
type StoredFile struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Path     string `json:"filepath"`
	Data     any    `json:"data"`
}

// CreatedAt returns the document's created_at value, or "" when the document
// is not an object or the field is absent or not a string.
func (f StoredFile) CreatedAt() string {
	m, ok := f.Data.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m["created_at"].(string)
	return s
}

// Outcome tells whether a scanned entry made it into a listing.
type Outcome int

const (
	Parsed Outcome = iota
	Skipped
)

func (o Outcome) String() string {
	if o == Parsed {
		return "parsed"
	}
	return "skipped"
}

// ScanResult is the per-file result of a directory scan. File is only set
// for Parsed entries and Reason only for Skipped ones.
type ScanResult struct {
	Name    string
	Outcome Outcome
	File    StoredFile
	Reason  string
}

// Option configures a Store.
type Option func(*Store)

// OnSkip registers a callback invoked for every entry a listing skips.
func OnSkip(fn func(ScanResult)) Option {
	return func(s *Store) { s.onSkip = fn }
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store reads and writes documents in one directory of fs.
type Store struct {
	fs     afero.Fs
	dir    string
	logger zerolog.Logger
	onSkip func(ScanResult)
}

// New returns a Store rooted at dir. The directory is not created until
// EnsureReady or the first write.
func New(fsys afero.Fs, dir string, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		fs:     fsys,
		dir:    filepath.Clean(dir),
		logger: logger.With().Str("component", "filestore").Str("dir", dir).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory the store is rooted at.
func (s *Store) Dir() string { return s.dir }

// Exists reports whether the storage directory has been created.
func (s *Store) Exists(_ context.Context) (bool, error) {
	ok, err := afero.DirExists(s.fs, s.dir)
	if err != nil {
		return false, &IOError{Op: "stat", Path: s.dir, Err: err}
	}
	return ok, nil
}

// EnsureReady creates the storage directory if it does not exist.
func (s *Store) EnsureReady(_ context.Context) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: s.dir, Err: err}
	}
	return nil
}

// Save encodes doc as indented JSON and writes it as medical_record_<id>.json.
// Non-ASCII and HTML characters are written unescaped. The document becomes
// visible under its final name only once it is fully written.
func (s *Store) Save(ctx context.Context, id string, doc any) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("filestore: record id %q: %w", id, ErrInvalidName)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("filestore: encode record %s: %w", id, err)
	}

	name := RecordFileName(id)
	if err := s.write(ctx, name, buf.Bytes()); err != nil {
		return "", err
	}
	return name, nil
}

// SaveRaw writes data unchanged under name, which must be a bare file name
// ending in .json.
func (s *Store) SaveRaw(ctx context.Context, name string, data []byte) (string, error) {
	if name == "" || filepath.Base(name) != name || !strings.HasSuffix(name, Ext) {
		return "", fmt.Errorf("filestore: %q: %w", name, ErrInvalidName)
	}
	if err := s.write(ctx, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// write stages data in a temp file inside the directory and renames it into
// place. A crash can leave a stray .tmp file behind but never a truncated
// .json document.
func (s *Store) write(ctx context.Context, name string, data []byte) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}

	target := filepath.Join(s.dir, name)
	if _, err := s.fs.Stat(target); err == nil {
		return &IOError{Op: "write", Path: target, Err: ErrExists}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return &IOError{Op: "stat", Path: target, Err: err}
	}

	tmp, err := afero.TempFile(s.fs, s.dir, tempPattern)
	if err != nil {
		return &IOError{Op: "create", Path: s.dir, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return &IOError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return &IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err := s.fs.Rename(tmpName, target); err != nil {
		_ = s.fs.Remove(tmpName)
		return &IOError{Op: "rename", Path: target, Err: err}
	}

	s.logger.Debug().Str("file", name).Int("bytes", len(data)).Msg("document written")
	return nil
}

// Scan reads every *.json entry of the directory and reports, per entry,
// whether it parsed. A missing directory yields no results and no error.
func (s *Store) Scan(ctx context.Context) ([]ScanResult, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []ScanResult{}, nil
		}
		return nil, &IOError{Op: "readdir", Path: s.dir, Err: err}
	}

	results := make([]ScanResult, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Ext) {
			continue
		}

		res, err := s.scanOne(name)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Store) scanOne(name string) (ScanResult, error) {
	path := filepath.Join(s.dir, name)

	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		// Removed between the directory read and now.
		if errors.Is(err, fs.ErrNotExist) {
			return skipped(name, "file disappeared during scan"), nil
		}
		return ScanResult{}, &IOError{Op: "read", Path: path, Err: err}
	}
	if !utf8.Valid(raw) {
		return skipped(name, "invalid utf-8"), nil
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return skipped(name, "invalid json: "+err.Error()), nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return ScanResult{
		Name:    name,
		Outcome: Parsed,
		File: StoredFile{
			Filename: name,
			Size:     int64(len(raw)),
			Path:     abs,
			Data:     data,
		},
	}, nil
}

func skipped(name, reason string) ScanResult {
	return ScanResult{Name: name, Outcome: Skipped, Reason: reason}
}

// ListAll returns every document in the directory that parses as JSON, in
// file name order. Unparseable entries are left out without an error.
func (s *Store) ListAll(ctx context.Context) ([]StoredFile, error) {
	results, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}

	files := make([]StoredFile, 0, len(results))
	for _, res := range results {
		if res.Outcome == Skipped {
			s.logger.Debug().Str("file", res.Name).Str("reason", res.Reason).Msg("skipping stored document")
			if s.onSkip != nil {
				s.onSkip(res)
			}
			continue
		}
		files = append(files, res.File)
	}
	return files, nil
}

// ListSortedByCreatedAt is ListAll ordered by created_at, most recent first.
// Values compare as strings; documents without one sort last.
func (s *Store) ListSortedByCreatedAt(ctx context.Context) ([]StoredFile, error) {
	files, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].CreatedAt() > files[j].CreatedAt()
	})
	return files, nil
}

// Load returns the raw bytes of the document stored under name.
func (s *Store) Load(_ context.Context, name string) ([]byte, error) {
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("filestore: %q: %w", name, ErrInvalidName)
	}
	path := filepath.Join(s.dir, name)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// Delete removes the file at path. A file that is already gone counts as
// deleted.
func (s *Store) Delete(_ context.Context, path string) error {
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &IOError{Op: "remove", Path: path, Err: err}
	}
	s.logger.Debug().Str("path", path).Msg("document deleted")
	return nil
}
