// Package mdbook speaks the mdbook preprocessor protocol.
//
// mdbook writes a JSON array [context, book] to the preprocessor's stdin
// and reads the processed book back from stdout. Only the fields this
// preprocessor touches are decoded; everything else is carried through as
// raw JSON so that books produced by newer mdbook versions survive the
// round trip unchanged.
package mdbook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Name is the preprocessor name used in book.toml ([preprocessor.scientific]).
const Name = "scientific"

// DefaultHead is the chapter number given to unnumbered chapters.
const DefaultHead = "1"

// ErrProtocol is returned for input that is not a valid [context, book] pair.
var ErrProtocol = errors.New("invalid mdbook input")

// supportedRenderers lists the renderers whose output this preprocessor can
// produce.
var supportedRenderers = map[string]bool{
	"html":     true,
	"markdown": true,
	"latex":    true,
	"tectonic": true,
}

// Supports reports whether renderer is handled.
func Supports(renderer string) bool {
	return supportedRenderers[strings.ToLower(strings.TrimSpace(renderer))]
}

// Context is the first element of the protocol input.
type Context struct {
	Root     string          `json:"root"`
	Renderer string          `json:"renderer"`
	Version  string          `json:"mdbook_version"`
	Config   json.RawMessage `json:"config"`
}

// Settings is the [preprocessor.scientific] table of book.toml.
// Empty fields were not set.
type Settings struct {
	FragmentPath string `json:"fragment_path"`
	AssetsPath   string `json:"assets_path"`
	CachePath    string `json:"cache_path"`
	Bibliography string `json:"bibliography"`
	Bib2xhtml    string `json:"bib2xhtml"`
	MathEngine   string `json:"math_engine"`
	Renderer     string `json:"renderer"`
}

// Settings decodes the preprocessor table from the book configuration.
// A missing table yields zero Settings.
func (c *Context) Settings() (Settings, error) {
	var cfg struct {
		Preprocessor map[string]json.RawMessage `json:"preprocessor"`
	}
	var s Settings
	if len(c.Config) == 0 || string(c.Config) == "null" {
		return s, nil
	}
	if err := json.Unmarshal(c.Config, &cfg); err != nil {
		return s, fmt.Errorf("%w: config: %v", ErrProtocol, err)
	}
	raw, ok := cfg.Preprocessor[Name]
	if !ok {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("%w: preprocessor.%s: %v", ErrProtocol, Name, err)
	}
	return s, nil
}

// Book is the second element of the protocol input.
type Book struct {
	fields map[string]json.RawMessage
	// itemsKey is "sections" for mdbook 0.4 and "items" for later versions.
	itemsKey string
	Items    []*Item
}

// Item is one entry of the book summary. Only chapters are decoded;
// separators and part titles are kept as raw JSON.
type Item struct {
	raw     json.RawMessage
	Chapter *Chapter
}

// Chapter is a book chapter.
type Chapter struct {
	fields   map[string]json.RawMessage
	Name     string
	Content  string
	Number   []int
	SubItems []*Item
}

// HeadNumber renders the section number as mdbook displays it ("1.2.").
// Unnumbered chapters get DefaultHead.
func (ch *Chapter) HeadNumber() string {
	if len(ch.Number) == 0 {
		return DefaultHead
	}
	var sb strings.Builder
	for _, n := range ch.Number {
		sb.WriteString(strconv.Itoa(n))
		sb.WriteByte('.')
	}
	return sb.String()
}

// Path returns the chapter's path field, or its name when the chapter is a
// draft without a file.
func (ch *Chapter) Path() string {
	var p string
	if raw, ok := ch.fields["path"]; ok {
		_ = json.Unmarshal(raw, &p)
	}
	if p == "" {
		return ch.Name
	}
	return p
}

// Chapters returns every chapter in reading order, descending into
// sub-items.
func (b *Book) Chapters() []*Chapter {
	var out []*Chapter
	var visit func(items []*Item)
	visit = func(items []*Item) {
		for _, it := range items {
			if it.Chapter == nil {
				continue
			}
			out = append(out, it.Chapter)
			visit(it.Chapter.SubItems)
		}
	}
	visit(b.Items)
	return out
}

// AppendChapter adds a top-level unnumbered chapter at the end of the book.
func (b *Book) AppendChapter(name, path, content string) {
	fields := map[string]json.RawMessage{
		"number":       json.RawMessage("null"),
		"path":         mustMarshal(path),
		"source_path":  mustMarshal(path),
		"parent_names": json.RawMessage("[]"),
	}
	b.Items = append(b.Items, &Item{Chapter: &Chapter{fields: fields, Name: name, Content: content}})
}

// Decode reads the [context, book] pair.
func Decode(r io.Reader) (*Context, *Book, error) {
	var pair []json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&pair); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if len(pair) != 2 {
		return nil, nil, fmt.Errorf("%w: expected [context, book], got %d elements", ErrProtocol, len(pair))
	}

	var ctx Context
	if err := json.Unmarshal(pair[0], &ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: context: %v", ErrProtocol, err)
	}
	book, err := decodeBook(pair[1])
	if err != nil {
		return nil, nil, err
	}
	return &ctx, book, nil
}

// Encode writes the book as mdbook expects it on stdout.
func Encode(w io.Writer, b *Book) error {
	data, err := b.MarshalJSON()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing book: %w", err)
	}
	return nil
}

func decodeBook(data json.RawMessage) (*Book, error) {
	b := &Book{}
	if err := json.Unmarshal(data, &b.fields); err != nil {
		return nil, fmt.Errorf("%w: book: %v", ErrProtocol, err)
	}
	if b.fields == nil {
		return nil, fmt.Errorf("%w: book is null", ErrProtocol)
	}
	for _, key := range []string{"sections", "items"} {
		if raw, ok := b.fields[key]; ok {
			b.itemsKey = key
			items, err := decodeItems(raw)
			if err != nil {
				return nil, err
			}
			b.Items = items
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: book has no sections", ErrProtocol)
}

func decodeItems(data json.RawMessage) ([]*Item, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: items: %v", ErrProtocol, err)
	}
	items := make([]*Item, 0, len(raws))
	for _, raw := range raws {
		it := &Item{raw: raw}
		var wrapper map[string]json.RawMessage
		// Separators are bare strings; only objects can hold a chapter.
		if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
			if err := json.Unmarshal(raw, &wrapper); err != nil {
				return nil, fmt.Errorf("%w: item: %v", ErrProtocol, err)
			}
		}
		if chRaw, ok := wrapper["Chapter"]; ok {
			ch, err := decodeChapter(chRaw)
			if err != nil {
				return nil, err
			}
			it.Chapter = ch
		}
		items = append(items, it)
	}
	return items, nil
}

func decodeChapter(data json.RawMessage) (*Chapter, error) {
	ch := &Chapter{}
	if err := json.Unmarshal(data, &ch.fields); err != nil {
		return nil, fmt.Errorf("%w: chapter: %v", ErrProtocol, err)
	}
	var typed struct {
		Name     string          `json:"name"`
		Content  string          `json:"content"`
		Number   []int           `json:"number"`
		SubItems json.RawMessage `json:"sub_items"`
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, fmt.Errorf("%w: chapter: %v", ErrProtocol, err)
	}
	ch.Name = typed.Name
	ch.Content = typed.Content
	ch.Number = typed.Number
	if len(typed.SubItems) > 0 && string(typed.SubItems) != "null" {
		subs, err := decodeItems(typed.SubItems)
		if err != nil {
			return nil, fmt.Errorf("chapter %q: %w", typed.Name, err)
		}
		ch.SubItems = subs
	}
	return ch, nil
}

// MarshalJSON writes the book with its original fields and updated items.
func (b *Book) MarshalJSON() ([]byte, error) {
	items, err := marshalItems(b.Items)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage, len(b.fields)+1)
	for k, v := range b.fields {
		fields[k] = v
	}
	key := b.itemsKey
	if key == "" {
		key = "sections"
	}
	fields[key] = items
	return json.Marshal(fields)
}

func marshalItems(items []*Item) (json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		if it.Chapter == nil {
			out = append(out, it.raw)
			continue
		}
		ch, err := it.Chapter.marshal()
		if err != nil {
			return nil, err
		}
		wrapped, err := json.Marshal(map[string]json.RawMessage{"Chapter": ch})
		if err != nil {
			return nil, err
		}
		out = append(out, wrapped)
	}
	return json.Marshal(out)
}

func (ch *Chapter) marshal() (json.RawMessage, error) {
	subs, err := marshalItems(ch.SubItems)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage, len(ch.fields)+3)
	for k, v := range ch.fields {
		fields[k] = v
	}
	fields["name"] = mustMarshal(ch.Name)
	fields["content"] = mustMarshal(ch.Content)
	fields["sub_items"] = subs
	return json.Marshal(fields)
}

func mustMarshal(s string) json.RawMessage {
	data, _ := json.Marshal(s) // strings always marshal
	return data
}
