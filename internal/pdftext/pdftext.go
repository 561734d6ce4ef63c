// Package pdftext reconstructs reading-ordered text from the embedded text layer of a PDF.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/ebookconv/internal/converr"
	"github.com/local/ebookconv/internal/format"
	"github.com/local/ebookconv/internal/ir"
)

// Item is a run of text placed at (X, Y) in page space. Y grows upwards.
type Item struct {
	X, Y float64
	S    string
}

// Doc abstracts an opened PDF document.
type Doc interface {
	NumPage() int
	// Page returns the positioned items of page i (0-based).
	Page(i int) ([]Item, error)
	Close() error
}

// Opener abstracts opening PDF bytes into a Doc.
type Opener interface {
	Name() string
	Open(data []byte) (Doc, error)
}

// Reader extracts text with a primary opener and falls back to the next on failure.
type Reader struct {
	openers []Opener
}

// NewReader uses the positioned-glyph opener first and MuPDF second.
func NewReader() *Reader {
	return &Reader{openers: []Opener{glyphOpener{}, fitzOpener{}}}
}

// NewReaderWith builds a Reader from explicit openers, tried in order.
func NewReaderWith(openers ...Opener) *Reader {
	return &Reader{openers: openers}
}

// ToDocument extracts text and classifies it. The title is filename minus a trailing ".pdf".
func (r *Reader) ToDocument(data []byte, filename string) (ir.Document, error) {
	text, err := r.Text(data)
	if err != nil {
		return ir.Document{}, err
	}
	return ir.FromText(text, Title(filename)), nil
}

// Text returns every page's items joined by single spaces, followed by a blank line.
func (r *Reader) Text(data []byte) (string, error) {
	if len(r.openers) == 0 {
		return "", converr.ReadFailure(format.PDF, errors.New("no PDF opener configured"))
	}
	start := time.Now()

	n, verr := PageCount(data)
	if verr != nil {
		log.Debug().Err(verr).Msg("pdf structural validation failed; trying text extraction anyway")
	} else {
		log.Debug().Int("pages", n).Msg("pdf page count")
	}

	var errs []error
	for _, o := range r.openers {
		pages, err := extract(o, data)
		if err != nil {
			log.Warn().Err(err).Str("opener", o.Name()).Msg("pdf text extraction failed")
			errs = append(errs, fmt.Errorf("%s: %w", o.Name(), err))
			continue
		}
		// A repaired document with no text is noise when the structure did not validate.
		if verr != nil && !hasText(pages) {
			log.Warn().Str("opener", o.Name()).Int("pages", len(pages)).Msg("invalid pdf yielded no text")
			errs = append(errs, fmt.Errorf("%s: no text recovered from invalid document", o.Name()))
			continue
		}
		var b strings.Builder
		for _, p := range pages {
			b.WriteString(p)
			b.WriteString("\n\n")
		}
		diag := Probe(pages, DefaultThreshold)
		if !diag.HasExtractableText {
			log.Warn().
				Int("pages", diag.TotalPages).
				Int("chars_in_sample", diag.TotalCharsInSample).
				Msg("pdf has little or no text layer; it may be scanned")
		}
		log.Debug().
			Str("opener", o.Name()).
			Int("chars", b.Len()).
			Dur("duration", time.Since(start)).
			Msg("extracted text from PDF")
		return b.String(), nil
	}
	if verr != nil {
		errs = append([]error{verr}, errs...)
	}
	return "", converr.ReadFailure(format.PDF, errors.Join(errs...))
}

// extract returns the reading-ordered text of each page.
func extract(o Opener, data []byte) ([]string, error) {
	doc, err := o.Open(data)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer doc.Close()
	if doc.NumPage() == 0 {
		return nil, errors.New("document has no pages")
	}

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		items, err := doc.Page(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		pages = append(pages, JoinPage(items))
	}
	return pages, nil
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

// JoinPage orders items top-to-bottom then left-to-right and joins them with single spaces.
func JoinPage(items []Item) string {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})
	parts := make([]string, len(sorted))
	for i, it := range sorted {
		parts[i] = it.S
	}
	return strings.Join(parts, " ")
}

// PageCount validates the document structure and returns its page count.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

// Title derives a document title from a PDF filename.
func Title(filename string) string {
	if len(filename) >= 4 && strings.EqualFold(filename[len(filename)-4:], ".pdf") {
		return filename[:len(filename)-4]
	}
	return filename
}
