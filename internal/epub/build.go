// Package epub reads EPUB containers into the document model and writes minimal EPUB3 containers.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/local/ebookconv/internal/ir"
)

const (
	MIMEType      = "application/epub+zip"
	ContainerPath = "META-INF/container.xml"
	PackagePath   = "OEBPS/content.opf"
	ContentPath   = "OEBPS/content.xhtml"
	NavPath       = "OEBPS/nav.xhtml"

	modifiedLayout = "2006-01-02T15:04:05Z"
)

// Builder writes documents as EPUB3 containers.
type Builder struct {
	Language string
	Now      func() time.Time
	NewID    func() string
}

// NewBuilder returns a Builder with the default language, clock and identifier source.
func NewBuilder() *Builder {
	return &Builder{Language: "zh", Now: time.Now, NewID: uuid.NewString}
}

// Build writes doc using a default Builder.
func Build(doc ir.Document) ([]byte, error) { return NewBuilder().Build(doc) }

// Build produces the archive bytes. The mimetype entry is written first and stored uncompressed.
func (b *Builder) Build(doc ir.Document) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	mw, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return nil, fmt.Errorf("create mimetype: %w", err)
	}
	if _, err := mw.Write([]byte(MIMEType)); err != nil {
		return nil, fmt.Errorf("write mimetype: %w", err)
	}

	title := EscapeHTML(doc.Title)
	entries := []struct{ name, body string }{
		{ContainerPath, containerXML},
		{PackagePath, b.packageDocument(title)},
		{ContentPath, contentDocument(title, doc.Sections)},
		{NavPath, navDocument(title)},
	}
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", e.name, err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			return nil, fmt.Errorf("write %s: %w", e.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

func (b *Builder) packageDocument(title string) string {
	lang := b.Language
	if lang == "" {
		lang = "zh"
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	newID := uuid.NewString
	if b.NewID != nil {
		newID = b.NewID
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>%s</dc:title>
    <dc:language>%s</dc:language>
    <dc:identifier id="uid">urn:uuid:%s</dc:identifier>
    <meta property="dcterms:modified">%s</meta>
  </metadata>
  <manifest>
    <item id="content" href="content.xhtml" media-type="application/xhtml+xml"/>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
  </manifest>
  <spine>
    <itemref idref="content"/>
  </spine>
</package>`, title, EscapeHTML(lang), newID(), now().UTC().Format(modifiedLayout))
}

func contentDocument(title string, sections []ir.Section) string {
	lines := make([]string, 0, len(sections))
	for _, s := range sections {
		text := EscapeHTML(s.Text)
		switch s.Kind {
		case ir.Heading:
			lines = append(lines, "<h2>"+text+"</h2>")
		case ir.Paragraph:
			lines = append(lines, "<p>"+text+"</p>")
		}
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>%s</title></head>
<body>
<h1>%s</h1>
%s
</body>
</html>`, title, title, strings.Join(lines, "\n"))
}

func navDocument(title string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Navigation</title></head>
<body>
<nav epub:type="toc">
  <ol><li><a href="content.xhtml">%s</a></li></ol>
</nav>
</body>
</html>`, title)
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes the five HTML-significant characters.
func EscapeHTML(s string) string { return htmlEscaper.Replace(s) }
