package epub

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/ebookconv/internal/converr"
	"github.com/local/ebookconv/internal/ir"
)

type entry struct{ name, body string }

func makeZip(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func fixedBuilder() *Builder {
	return &Builder{
		Language: "zh",
		Now:      func() time.Time { return time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC) },
		NewID:    func() string { return "00000000-0000-4000-8000-000000000001" },
	}
}

func readAll(t *testing.T, f *zip.File) string {
	t.Helper()
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

const container = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OPS/package.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`

func chapter(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><html xmlns="http://www.w3.org/1999/xhtml"><head><title>x</title></head><body>` + body + `</body></html>`
}

func TestBuild_MimetypeFirstAndStored(t *testing.T) {
	data, err := fixedBuilder().Build(ir.Document{Title: "Book"})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.NotEmpty(t, zr.File)

	first := zr.File[0]
	assert.Equal(t, "mimetype", first.Name)
	assert.Equal(t, zip.Store, first.Method)
	assert.Equal(t, "application/epub+zip", readAll(t, first))
	// the literal entry name must appear right after the local header
	assert.Equal(t, "mimetype", string(data[30:38]))

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"mimetype", ContainerPath, PackagePath, ContentPath, NavPath}, names)
}

func TestBuild_Documents(t *testing.T) {
	doc := ir.Document{Title: `Tom & "Jerry"`, Sections: []ir.Section{
		{Kind: ir.Heading, Text: "Chapter <1>"},
		{Kind: ir.Paragraph, Text: "It's a paragraph."},
	}}
	data, err := fixedBuilder().Build(doc)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	bodies := map[string]string{}
	for _, f := range zr.File {
		bodies[f.Name] = readAll(t, f)
	}

	opf := bodies[PackagePath]
	assert.Contains(t, opf, "<dc:title>Tom &amp; &quot;Jerry&quot;</dc:title>")
	assert.Contains(t, opf, "<dc:language>zh</dc:language>")
	assert.Contains(t, opf, `<dc:identifier id="uid">urn:uuid:00000000-0000-4000-8000-000000000001</dc:identifier>`)
	assert.Contains(t, opf, `<meta property="dcterms:modified">2024-03-01T12:30:45Z</meta>`)
	assert.Contains(t, opf, `properties="nav"`)
	assert.Contains(t, opf, `<itemref idref="content"/>`)

	content := bodies[ContentPath]
	h1 := strings.Index(content, "<h1>Tom &amp; &quot;Jerry&quot;</h1>")
	h2 := strings.Index(content, "<h2>Chapter &lt;1&gt;</h2>")
	p := strings.Index(content, "<p>It&#39;s a paragraph.</p>")
	require.True(t, h1 >= 0 && h2 >= 0 && p >= 0, content)
	assert.True(t, h1 < h2 && h2 < p)

	assert.Contains(t, bodies[NavPath], `epub:type="toc"`)
	assert.Contains(t, bodies[NavPath], `<a href="content.xhtml">Tom &amp; &quot;Jerry&quot;</a>`)
	assert.Contains(t, bodies[ContainerPath], `full-path="OEBPS/content.opf"`)
}

func TestBuildThenParse(t *testing.T) {
	long := "This paragraph is comfortably longer than the forty character threshold."
	doc := ir.Document{Title: "My Book", Sections: []ir.Section{
		{Kind: ir.Heading, Text: "Chapter 1"},
		{Kind: ir.Paragraph, Text: long},
		{Kind: ir.Paragraph, Text: "Fish & chips."},
	}}
	data, err := Build(doc)
	require.NoError(t, err)

	got, err := Parse(data, "ignored.epub")
	require.NoError(t, err)
	assert.Equal(t, "My Book", got.Title)
	assert.Equal(t, []ir.Section{
		{Kind: ir.Heading, Text: "My Book"},
		{Kind: ir.Heading, Text: "Chapter 1"},
		{Kind: ir.Paragraph, Text: long},
		{Kind: ir.Paragraph, Text: "Fish & chips."},
	}, got.Sections)
}

func TestParse_MissingContainer(t *testing.T) {
	data := makeZip(t, entry{"mimetype", MIMEType}, entry{"OEBPS/a.xhtml", chapter("<p>hi</p>")})
	_, err := Parse(data, "a.epub")
	require.Error(t, err)
	assert.True(t, errors.Is(err, converr.ErrMalformedArchive))
	assert.Equal(t, "Invalid EPUB: missing container.xml", err.Error())
}

func TestParse_NotAZip(t *testing.T) {
	_, err := Parse([]byte("plain text, not a zip"), "a.epub")
	require.Error(t, err)
	assert.True(t, errors.Is(err, converr.ErrReadFailure))
}

func TestParse_SpineOrderAndOpfDir(t *testing.T) {
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title> Spine Book </dc:title></metadata>
  <manifest>
    <item href="text/two.xhtml" id="two" media-type="application/xhtml+xml"/>
    <item id="one" href="text/one.xhtml" media-type="application/xhtml+xml"/>
    <item id="img" href="cover.png" media-type="image/png"/>
  </manifest>
  <spine><itemref idref="one"/><itemref idref="img"/><itemref idref="two"/><itemref idref="missing"/></spine>
</package>`
	data := makeZip(t,
		entry{"mimetype", MIMEType},
		entry{ContainerPath, container},
		entry{"OPS/package.opf", opf},
		entry{"OPS/text/two.xhtml", chapter("<p>Second chapter body text that is long enough.</p>")},
		entry{"OPS/text/one.xhtml", chapter("<h1>Part One</h1><p>First chapter body text, long enough to be a paragraph.</p>")},
	)

	doc, err := Parse(data, "file.epub")
	require.NoError(t, err)
	assert.Equal(t, "Spine Book", doc.Title)
	require.Len(t, doc.Sections, 3)
	assert.Equal(t, ir.Section{Kind: ir.Heading, Text: "Part One"}, doc.Sections[0])
	assert.Equal(t, "First chapter body text, long enough to be a paragraph.", doc.Sections[1].Text)
	assert.Equal(t, "Second chapter body text that is long enough.", doc.Sections[2].Text)
}

func TestParse_FirstManifestDeclarationWins(t *testing.T) {
	opf := `<package xmlns="http://www.idpf.org/2007/opf">
  <manifest>
    <item id="c1" href="a.xhtml" media-type="application/xhtml+xml"/>
    <item id="c1" href="b.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="c1"/></spine>
</package>`
	data := makeZip(t,
		entry{ContainerPath, container},
		entry{"OPS/package.opf", opf},
		entry{"OPS/a.xhtml", chapter("<p>from a</p>")},
		entry{"OPS/b.xhtml", chapter("<p>from b</p>")},
	)
	doc, err := Parse(data, "dup.epub")
	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "from a", doc.Sections[0].Text)
	assert.Equal(t, "dup", doc.Title)
}

func TestParse_FallbackEnumeration(t *testing.T) {
	noOpf := `<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container"><rootfiles/></container>`
	data := makeZip(t,
		entry{ContainerPath, noOpf},
		entry{"z/last.htm", chapter("<p>Last one here.</p>")},
		entry{"a/first.XHTML", chapter("<p>First one here.</p>")},
		entry{"m/middle.html", chapter("<p>Middle one here.</p>")},
		entry{"styles.css", "body{}"},
	)
	doc, err := Parse(data, "Books/Fallback.EPUB")
	require.NoError(t, err)
	assert.Equal(t, "Fallback", doc.Title)
	var texts []string
	for _, s := range doc.Sections {
		texts = append(texts, s.Text)
	}
	assert.Equal(t, []string{"First one here.", "Middle one here.", "Last one here."}, texts)
}

func TestParse_SpineWithoutHTMLFallsBack(t *testing.T) {
	opf := `<package xmlns="http://www.idpf.org/2007/opf">
  <manifest><item id="img" href="i.png" media-type="image/png"/></manifest>
  <spine><itemref idref="img"/></spine>
</package>`
	data := makeZip(t,
		entry{ContainerPath, container},
		entry{"OPS/package.opf", opf},
		entry{"OPS/only.xhtml", chapter("<p>Only content.</p>")},
	)
	doc, err := Parse(data, "x.epub")
	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Only content.", doc.Sections[0].Text)
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "\nA&nbsp;B\n", ExtractText("<body><p>A&amp;nbsp;B</p></body>"))
	assert.Equal(t, "\n1 < 2 > 0 & more\n", ExtractText("<BODY class='x'><p>1&nbsp;&lt;&nbsp;2 &gt; 0 &amp; more</p></BODY>"))
	assert.Equal(t, "&lt;", ExtractText("&amp;lt;"))
	assert.Equal(t, "\nno body\n", ExtractText("<div>no body</div>"))
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "&amp;&lt;&gt;&quot;&#39;", EscapeHTML(`&<>"'`))
	safe := "plain text without specials 中文"
	assert.Equal(t, safe, EscapeHTML(safe))
	assert.Equal(t, EscapeHTML(safe), EscapeHTML(EscapeHTML(safe)))
}
