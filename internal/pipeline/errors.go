package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for directive and span scanning.
var (
	ErrMalformedDirective          = errors.New("malformed directive")
	ErrMissingFragment             = errors.New("missing fragment")
	ErrUnknownReferenceKind        = errors.New("unknown reference kind")
	ErrUnexpectedReferenceArgCount = errors.New("unexpected reference argument count")
	ErrInvalidReference            = errors.New("invalid reference")
	ErrUnevenMarkers               = errors.New("uneven number of $ markers")
)

// SyntaxError locates a failure in a document.
type SyntaxError struct {
	Line   int
	Column int
	Err    error
	Detail string
}

func (e *SyntaxError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%d:%d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("%d:%d: %v: %s", e.Line, e.Column, e.Err, e.Detail)
}

func (e *SyntaxError) Unwrap() error { return e.Err }
