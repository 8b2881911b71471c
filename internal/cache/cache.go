// Package cache stores rendered artifacts on disk, addressed by a hash of
// the content they were rendered from.
//
// Files live flat in the cache directory as <id>.<ext>, where id is the
// first 24 hex characters of the content hash. A file that exists is never
// regenerated, which makes repeated builds over unchanged content free of
// renderer invocations, across processes as well as within one.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/alnah/go-scimd/internal/fileutil"
)

// IDLength is the number of hex characters kept from the content hash.
const IDLength = 24

// filePermissions applies to every cached artifact.
const filePermissions = 0o644

// Sentinel errors for cache operations.
var (
	ErrCacheIO     = errors.New("cache I/O failure")
	ErrUnknownHash = errors.New("unknown hash algorithm")
	ErrInvalidID   = errors.New("invalid content id")
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// idPattern matches a truncated lowercase hex content id.
var idPattern = regexp.MustCompile(`^[a-f0-9]{24}$`)

// Algorithm names the hash function used to derive content ids.
type Algorithm string

// Supported hash algorithms.
const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// ParseAlgorithm converts a config value to an Algorithm.
// An empty string selects SHA256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SHA256):
		return SHA256, nil
	case string(BLAKE3):
		return BLAKE3, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownHash, s)
}

// Identify returns the SHA-256 content id of content.
func Identify(content string) string {
	return IdentifyWith(SHA256, content)
}

// IdentifyWith returns the content id of content under the given algorithm.
// Unknown algorithms fall back to SHA-256.
func IdentifyWith(alg Algorithm, content string) string {
	var sum []byte
	switch alg {
	case BLAKE3:
		h := blake3.Sum256([]byte(content))
		sum = h[:]
	default:
		h := sha256.Sum256([]byte(content))
		sum = h[:]
	}
	return hex.EncodeToString(sum)[:IDLength]
}

// ValidID reports whether id has the shape of a content id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Store is a content-addressed artifact directory.
type Store struct {
	dir string
	alg Algorithm

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore opens (and creates if needed) a cache rooted at dir.
func NewStore(dir string, alg Algorithm) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty cache directory", ErrCacheIO)
	}
	if alg == "" {
		alg = SHA256
	}
	if _, err := ParseAlgorithm(string(alg)); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrCacheIO, dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	return &Store{dir: abs, alg: alg, locks: make(map[string]*sync.Mutex)}, nil
}

// Dir returns the absolute cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Algorithm returns the hash algorithm used by Identify.
func (s *Store) Algorithm() Algorithm {
	return s.alg
}

// Identify returns the content id for content.
func (s *Store) Identify(content string) string {
	return IdentifyWith(s.alg, content)
}

// Name returns the file name <id>.<ext> used for an artifact.
func Name(id, ext string) string {
	return id + "." + strings.TrimPrefix(ext, ".")
}

// Path maps a content id and extension to a file path in the cache.
func (s *Store) Path(id, ext string) string {
	return filepath.Join(s.dir, Name(id, ext))
}

// Exists reports whether path is an existing regular file.
func (s *Store) Exists(path string) bool {
	return fileutil.FileExists(path)
}

// Has reports whether the artifact <id>.<ext> is present.
func (s *Store) Has(id, ext string) bool {
	return s.Exists(s.Path(id, ext))
}

// Lock serializes work on one content id. The check-then-create sequence
// of a render must run under this lock when documents are processed
// concurrently. Call the returned function to release it.
func (s *Store) Lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// WriteFile stores data as <id>.<ext> unless that file already exists.
// The write goes through a temp file and a rename, so readers never see a
// partial artifact. Returns the artifact path.
func (s *Store) WriteFile(id, ext string, data []byte) (string, error) {
	if err := s.validate(id, ext); err != nil {
		return "", err
	}

	path := s.Path(id, ext)
	if s.Exists(path) {
		return path, nil
	}

	if err := fileutil.WriteFileAtomic(path, data, filePermissions, fileutil.WithRename(osRename)); err != nil {
		return "", fmt.Errorf("%w: writing %s: %v", ErrCacheIO, path, err)
	}
	return path, nil
}

// Discard removes <id>.<ext> if present. Renderers call it when a tool
// fails after writing output, so the next run does not take the partial
// file for a cache hit.
func (s *Store) Discard(id, ext string) {
	if s.validate(id, ext) != nil {
		return
	}
	_ = os.Remove(s.Path(id, ext))
}

// ReadFile returns the content of <id>.<ext>.
func (s *Store) ReadFile(id, ext string) ([]byte, error) {
	if err := s.validate(id, ext); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(id, ext))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	return data, nil
}

// Entry describes the files cached for one content id.
type Entry struct {
	ID    string
	Files []string
	Bytes int64
}

// Entries lists cached artifacts grouped by content id, sorted by id.
// Temp files and foreign files are ignored.
func (s *Store) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrCacheIO, s.dir, err)
	}

	byID := make(map[string]*Entry)
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		id, _, ok := strings.Cut(name, ".")
		if !ok || !ValidID(id) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheIO, err)
		}
		e, ok := byID[id]
		if !ok {
			e = &Entry{ID: id}
			byID[id] = e
		}
		e.Files = append(e.Files, name)
		e.Bytes += info.Size()
	}

	entries := make([]Entry, 0, len(byID))
	for _, e := range byID {
		sort.Strings(e.Files)
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// Remove deletes every file cached for id. Returns the number of bytes freed.
func (s *Store) Remove(id string) (int64, error) {
	if !ValidID(id) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, id+".*"))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	var freed int64
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if err := os.Remove(m); err != nil {
			return freed, fmt.Errorf("%w: removing %s: %v", ErrCacheIO, m, err)
		}
		freed += info.Size()
	}
	return freed, nil
}

// CopyTo copies the cached file name into destDir, creating destDir if
// needed. Existing destination files are overwritten.
func (s *Store) CopyTo(name, destDir string) error {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrCacheIO, destDir, err)
	}
	src, err := os.Open(filepath.Join(s.dir, filepath.Base(name))) // #nosec G304 -- name comes from the cache
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(destDir, filepath.Base(name)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("%w: copying %s: %v", ErrCacheIO, name, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	return nil
}

func (s *Store) validate(id, ext string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if err := fileutil.ValidateExtension(strings.TrimPrefix(ext, ".")); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	return nil
}
