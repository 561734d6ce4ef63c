package pdftext

import (
	"bytes"
	"fmt"
	"math"

	"github.com/ledongthuc/pdf"
)

// glyphOpener reads positioned glyphs with github.com/ledongthuc/pdf.
type glyphOpener struct{}

func (glyphOpener) Name() string { return "ledongthuc" }

func (glyphOpener) Open(data []byte) (doc Doc, err error) {
	// the object parser panics on some broken trailers
	defer func() {
		if rec := recover(); rec != nil {
			doc, err = nil, fmt.Errorf("malformed document: %v", rec)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return &glyphDoc{r: r, pages: r.NumPage()}, nil
}

type glyphDoc struct {
	r     *pdf.Reader
	pages int
}

func (d *glyphDoc) NumPage() int { return d.pages }

func (d *glyphDoc) Close() error { return nil }

func (d *glyphDoc) Page(i int) (items []Item, err error) {
	p := d.r.Page(i + 1)
	if p.V.IsNull() {
		return nil, nil
	}
	// the content parser panics on malformed streams
	defer func() {
		if rec := recover(); rec != nil {
			items, err = nil, fmt.Errorf("malformed content stream: %v", rec)
		}
	}()
	return mergeGlyphs(p.Content().Text), nil
}

// mergeGlyphs joins consecutive glyphs on the same baseline into runs, like a text-layer item.
func mergeGlyphs(glyphs []pdf.Text) []Item {
	var items []Item
	var cur *Item
	var end, size float64
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if cur != nil && sameRun(cur.Y, end, size, g) {
			cur.S += g.S
			end = g.X + g.W
			continue
		}
		if cur != nil {
			items = append(items, *cur)
		}
		cur = &Item{X: g.X, Y: g.Y, S: g.S}
		end, size = g.X+g.W, g.FontSize
	}
	if cur != nil {
		items = append(items, *cur)
	}
	return items
}

func sameRun(y, end, size float64, g pdf.Text) bool {
	if math.Abs(g.Y-y) > 0.5 {
		return false
	}
	gap := g.X - end
	tol := math.Max(1, size*0.3)
	return gap > -tol && gap < tol
}
