package render

import (
	"bytes"
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

var svgRoot = xpath.MustCompile("/*[local-name()='svg']")

// CheckSVG reports whether data is an XML document with an svg root element.
func CheckSVG(data []byte) error {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: invalid svg: %v", ErrRenderBackend, err)
	}
	if xmlquery.QuerySelector(doc, svgRoot) == nil {
		return fmt.Errorf("%w: invalid svg: missing svg root element", ErrRenderBackend)
	}
	return nil
}
