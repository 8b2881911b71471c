// Package archive moves a render cache between machines as a .tar.xz file.
//
// Archives are flat: every member is a cache file name <id>.<ext>. Import
// refuses anything else, so an archive cannot write outside the cache.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/alnah/go-scimd/internal/cache"
)

// MaxMemberSize bounds a single archive member.
const MaxMemberSize = 64 << 20

// Sentinel errors for archive operations.
var (
	ErrArchiveIO     = errors.New("archive I/O failure")
	ErrUnsafePath    = errors.New("unsafe path in archive")
	ErrMemberTooBig  = errors.New("archive member too large")
	ErrNotAnArchive  = errors.New("not an xz archive")
	errUnexpectedDir = errors.New("directories are not allowed")
)

// xzMagic is the xz stream header.
var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// Export writes every artifact of store to dst. Returns the number of
// files written.
func Export(ctx context.Context, store *cache.Store, dst string) (int, error) {
	entries, err := store.Entries()
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrArchiveIO, err)
	}
	tmp, err := os.CreateTemp(dir, ".scimd-archive-*")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrArchiveIO, err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) (int, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}

	xw, err := xz.NewWriter(tmp)
	if err != nil {
		return fail(fmt.Errorf("%w: xz writer: %v", ErrArchiveIO, err))
	}
	tw := tar.NewWriter(xw)

	n := 0
	for _, e := range entries {
		for _, name := range e.Files {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			if err := addFile(tw, filepath.Join(store.Dir(), name), name); err != nil {
				return fail(err)
			}
			n++
		}
	}

	if err := tw.Close(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrArchiveIO, err))
	}
	if err := xw.Close(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrArchiveIO, err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: %v", ErrArchiveIO, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: %v", ErrArchiveIO, err)
	}
	return n, nil
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from the cache listing
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveIO, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveIO, err)
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveIO, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArchiveIO, name, err)
	}
	return nil
}

// Import extracts src into store. Files already cached are kept, since
// equal names mean equal content. Returns the number of files added.
func Import(ctx context.Context, src string, store *cache.Store) (int, error) {
	f, err := os.Open(src) // #nosec G304 -- user-provided archive
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrArchiveIO, err)
	}
	defer f.Close()

	magic := make([]byte, len(xzMagic))
	if _, err := io.ReadFull(f, magic); err != nil || string(magic) != string(xzMagic) {
		return 0, fmt.Errorf("%w: %s", ErrNotAnArchive, src)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrArchiveIO, err)
	}

	xr, err := xz.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotAnArchive, err)
	}
	tr := tar.NewReader(xr)

	added := 0
	for {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return added, nil
		}
		if err != nil {
			return added, fmt.Errorf("%w: reading header: %v", ErrArchiveIO, err)
		}

		id, ext, err := memberName(hdr)
		if err != nil {
			return added, err
		}
		if store.Has(id, ext) {
			continue
		}
		if hdr.Size > MaxMemberSize {
			return added, fmt.Errorf("%w: %s is %d bytes", ErrMemberTooBig, hdr.Name, hdr.Size)
		}
		data, err := io.ReadAll(io.LimitReader(tr, MaxMemberSize+1))
		if err != nil {
			return added, fmt.Errorf("%w: %s: %v", ErrArchiveIO, hdr.Name, err)
		}
		if len(data) > MaxMemberSize {
			return added, fmt.Errorf("%w: %s", ErrMemberTooBig, hdr.Name)
		}
		if _, err := store.WriteFile(id, ext, data); err != nil {
			return added, err
		}
		added++
	}
}

// memberName validates a member and splits its name into id and extension.
func memberName(hdr *tar.Header) (string, string, error) {
	name := hdr.Name
	switch {
	case hdr.Typeflag == tar.TypeDir:
		return "", "", fmt.Errorf("%w: %q: %v", ErrUnsafePath, name, errUnexpectedDir)
	case hdr.Typeflag != tar.TypeReg:
		return "", "", fmt.Errorf("%w: %q is not a regular file", ErrUnsafePath, name)
	case strings.ContainsAny(name, `/\`) || strings.Contains(name, ".."):
		return "", "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	id, ext, ok := strings.Cut(name, ".")
	if !ok || ext == "" || !cache.ValidID(id) {
		return "", "", fmt.Errorf("%w: %q is not a cache file name", ErrUnsafePath, name)
	}
	return id, ext, nil
}
