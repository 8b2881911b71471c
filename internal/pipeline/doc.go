// Package pipeline implements the two scanners that rewrite a chapter.
//
// The block pass walks a document line by line, recognizes directives
// delimited by $$, renders their content and replaces them with target
// markup. It assigns figure and equation numbers and returns the
// reference entries it defined. The inline pass runs afterwards, once
// every document's entries are known, and replaces $...$ spans with
// inline math or resolved reference links.
//
// Neither pass mutates shared state. Each returns what it produced so the
// caller can merge it only when the document succeeded.
package pipeline
