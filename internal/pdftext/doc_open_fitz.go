package pdftext

import (
	fitz "github.com/gen2brain/go-fitz"
)

// fitzOpener implements Opener using github.com/gen2brain/go-fitz. MuPDF already emits
// page text in reading order, so each page becomes a single item.
type fitzOpener struct{}

func (fitzOpener) Name() string { return "mupdf" }

func (fitzOpener) Open(data []byte) (Doc, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return fitzDoc{doc}, nil
}

// --- Adapters ---

type fitzDoc struct{ *fitz.Document }

func (d fitzDoc) Page(i int) ([]Item, error) {
	text, err := d.Document.Text(i)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return []Item{{S: text}}, nil
}
