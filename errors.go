package scimd

import (
	"errors"
	"fmt"

	"github.com/alnah/go-scimd/internal/cache"
	"github.com/alnah/go-scimd/internal/format"
	"github.com/alnah/go-scimd/internal/pipeline"
	"github.com/alnah/go-scimd/internal/reftable"
	"github.com/alnah/go-scimd/internal/render"
)

// Sentinel errors for library operations.
var (
	// Content errors, reported as *SyntaxError with a position.
	ErrMalformedDirective          = pipeline.ErrMalformedDirective
	ErrMissingFragment             = pipeline.ErrMissingFragment
	ErrUnknownReferenceKind        = pipeline.ErrUnknownReferenceKind
	ErrUnexpectedReferenceArgCount = pipeline.ErrUnexpectedReferenceArgCount
	ErrInvalidReference            = pipeline.ErrInvalidReference
	ErrUnevenMarkers               = pipeline.ErrUnevenMarkers
	ErrDuplicateReference          = reftable.ErrDuplicateReference

	// Rendering errors.
	ErrRenderBackend  = render.ErrRenderBackend
	ErrBinaryNotFound = render.ErrBinaryNotFound
	ErrCacheIO        = cache.ErrCacheIO

	// Configuration errors.
	ErrTargetNotSupported = format.ErrTargetNotSupported
	ErrInvalidOption      = errors.New("invalid option")
)

// SyntaxError locates a content error in a chapter.
type SyntaxError = pipeline.SyntaxError

// LatexError is a compilation failure reported by latex.
type LatexError = render.LatexError

// Phase names a processing pass.
type Phase string

// Processing passes.
const (
	PhaseBlocks Phase = "block"
	PhaseInline Phase = "inline"
)

// DocumentError reports the chapter and pass a failure happened in.
type DocumentError struct {
	ID    string
	Phase Phase
	Err   error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %q: %s pass: %v", e.ID, e.Phase, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }
