package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/rs/zerolog/log"

	"github.com/local/ebookconv/internal/converr"
	"github.com/local/ebookconv/internal/format"
	"github.com/local/ebookconv/internal/ir"
)

// ManifestItem is one package-document manifest declaration.
type ManifestItem struct {
	Href      string
	MediaType string
}

// Package is the subset of the package document used to order content.
type Package struct {
	Title    string
	Manifest map[string]ManifestItem
	Spine    []string
}

var (
	bodyRe  = regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	htmlExt = regexp.MustCompile(`(?i)\.(xhtml|html|htm)$`)
)

// Parse reads an EPUB archive into a document. filename supplies the fallback title.
func Parse(data []byte, filename string) (ir.Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ir.Document{}, converr.ReadFailure(format.EPUB, err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	container, ok := files[ContainerPath]
	if !ok {
		return ir.Document{}, &converr.MalformedArchiveError{Reason: "missing container.xml"}
	}
	raw, err := readEntry(container)
	if err != nil {
		return ir.Document{}, &converr.MalformedArchiveError{Reason: "unreadable container.xml", Err: err}
	}

	title := fallbackTitle(filename)
	var docs []string

	opfPath := RootfilePath(raw)
	if opfPath != "" {
		if f, ok := files[opfPath]; ok {
			if opf, err := readEntry(f); err == nil {
				pkg, perr := ParsePackage(opf)
				if perr != nil {
					log.Debug().Err(perr).Str("opf", opfPath).Msg("package document not parseable; using fallback order")
				} else {
					if pkg.Title != "" {
						title = pkg.Title
					}
					docs = pkg.ReadingOrder(opfDir(opfPath))
				}
			}
		}
	}

	if len(docs) == 0 {
		docs = fallbackOrder(zr.File)
		log.Debug().Int("documents", len(docs)).Msg("epub spine unresolved; enumerating html entries")
	}

	var text strings.Builder
	for _, name := range docs {
		f := lookup(files, name)
		if f == nil {
			continue
		}
		content, err := readEntry(f)
		if err != nil || len(content) == 0 {
			continue
		}
		text.WriteString(ExtractText(string(content)))
		text.WriteString("\n\n")
	}

	return ir.FromText(text.String(), title), nil
}

// RootfilePath returns the full-path of the first rootfile in container.xml, or "".
func RootfilePath(containerXML []byte) string {
	doc, err := xmlquery.Parse(bytes.NewReader(containerXML))
	if err != nil {
		return ""
	}
	n := xmlquery.FindOne(doc, "//*[local-name()='rootfile'][@full-path]")
	if n == nil {
		return ""
	}
	return n.SelectAttr("full-path")
}

// ParsePackage extracts title, manifest and spine from a package document.
// When an id is declared more than once the first declaration wins.
func ParsePackage(opf []byte) (Package, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(opf))
	if err != nil {
		return Package{}, fmt.Errorf("parse package document: %w", err)
	}
	pkg := Package{Manifest: map[string]ManifestItem{}}

	if t := xmlquery.FindOne(doc, "//*[local-name()='metadata']/*[local-name()='title']"); t != nil {
		pkg.Title = strings.TrimSpace(t.InnerText())
	}

	for _, item := range xmlquery.Find(doc, "//*[local-name()='manifest']/*[local-name()='item']") {
		id, href, mt := item.SelectAttr("id"), item.SelectAttr("href"), item.SelectAttr("media-type")
		if id == "" || href == "" || mt == "" {
			continue
		}
		if _, seen := pkg.Manifest[id]; seen {
			continue
		}
		pkg.Manifest[id] = ManifestItem{Href: href, MediaType: mt}
	}

	for _, ref := range xmlquery.Find(doc, "//*[local-name()='spine']/*[local-name()='itemref']") {
		if idref := ref.SelectAttr("idref"); idref != "" {
			pkg.Spine = append(pkg.Spine, idref)
		}
	}
	return pkg, nil
}

// ReadingOrder resolves spine entries to archive paths, keeping only HTML/XML documents.
func (p Package) ReadingOrder(dir string) []string {
	var out []string
	for _, idref := range p.Spine {
		item, ok := p.Manifest[idref]
		if !ok {
			continue
		}
		if strings.Contains(item.MediaType, "html") || strings.Contains(item.MediaType, "xml") {
			out = append(out, dir+item.Href)
		}
	}
	return out
}

// ExtractText returns the body of an (X)HTML document with tags turned into line breaks
// and the basic entities decoded.
func ExtractText(content string) string {
	body := content
	if m := bodyRe.FindStringSubmatch(content); m != nil {
		body = m[1]
	}
	return decodeEntities(tagRe.ReplaceAllString(body, "\n"))
}

// decodeEntities decodes exactly &nbsp; &lt; &gt; and &amp;, in that order.
func decodeEntities(s string) string {
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	return strings.ReplaceAll(s, "&amp;", "&")
}

func fallbackOrder(entries []*zip.File) []string {
	var out []string
	for _, f := range entries {
		if htmlExt.MatchString(f.Name) {
			out = append(out, f.Name)
		}
	}
	sort.Strings(out)
	return out
}

func opfDir(opfPath string) string {
	i := strings.LastIndex(opfPath, "/")
	if i < 0 {
		return ""
	}
	return opfPath[:i+1]
}

func fallbackTitle(filename string) string {
	if filename == "" {
		return ""
	}
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if strings.EqualFold(path.Ext(base), ".epub") {
		return base[:len(base)-len(".epub")]
	}
	return base
}

func lookup(files map[string]*zip.File, name string) *zip.File {
	if f, ok := files[name]; ok {
		return f
	}
	return files[path.Clean(name)]
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
