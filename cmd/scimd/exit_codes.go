package main

import (
	"errors"
	"os"

	scimd "github.com/alnah/go-scimd"
	"github.com/alnah/go-scimd/internal/archive"
	"github.com/alnah/go-scimd/internal/bibliography"
	"github.com/alnah/go-scimd/internal/config"
	"github.com/alnah/go-scimd/internal/manifest"
	"github.com/alnah/go-scimd/internal/mdbook"
	"github.com/alnah/go-scimd/internal/preview"
)

// Exit codes for the scimd CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Successful run
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or chapter content
	ExitIO      = 3 // File not found, permission denied, cache failure
	ExitRender  = 4 // Renderer tool missing or failing
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Renderer errors (exit 4)
	if errors.Is(err, scimd.ErrRenderBackend) ||
		errors.Is(err, scimd.ErrBinaryNotFound) ||
		errors.Is(err, bibliography.ErrInvalidBibliography) {
		return ExitRender
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, scimd.ErrCacheIO) ||
		errors.Is(err, manifest.ErrManifest) ||
		errors.Is(err, archive.ErrArchiveIO) ||
		errors.Is(err, bibliography.ErrBibliographyIO) ||
		errors.Is(err, preview.ErrPreviewIO) ||
		errors.Is(err, ErrReadChapter) ||
		errors.Is(err, ErrWriteChapter) {
		return ExitIO
	}

	// Usage/config/content errors (exit 2)
	if errors.Is(err, ErrUsage) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, mdbook.ErrProtocol) ||
		errors.Is(err, archive.ErrUnsafePath) ||
		errors.Is(err, archive.ErrMemberTooBig) ||
		errors.Is(err, archive.ErrNotAnArchive) ||
		errors.Is(err, scimd.ErrInvalidOption) ||
		errors.Is(err, scimd.ErrTargetNotSupported) ||
		errors.Is(err, scimd.ErrMalformedDirective) ||
		errors.Is(err, scimd.ErrUnknownReferenceKind) ||
		errors.Is(err, scimd.ErrUnexpectedReferenceArgCount) ||
		errors.Is(err, scimd.ErrInvalidReference) ||
		errors.Is(err, scimd.ErrUnevenMarkers) ||
		errors.Is(err, scimd.ErrDuplicateReference) ||
		errors.Is(err, ErrNoChapters) {
		return ExitUsage
	}

	return ExitGeneral
}
