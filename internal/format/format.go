// Package format defines the closed set of e-book formats and filename helpers.
package format

import (
	"fmt"
	"strings"
)

// Format is one of the supported e-book formats.
type Format int

const (
	PDF Format = iota + 1
	EPUB
	TXT
	MOBI
	AZW3
)

// All returns the supported formats in display order.
func All() []Format { return []Format{PDF, EPUB, TXT, MOBI, AZW3} }

func (f Format) String() string {
	switch f {
	case PDF:
		return "pdf"
	case EPUB:
		return "epub"
	case TXT:
		return "txt"
	case MOBI:
		return "mobi"
	case AZW3:
		return "azw3"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Extension is the lowercase file extension without a dot.
func (f Format) Extension() string { return f.String() }

// MIMEType returns the media type used when serving converted bytes.
func (f Format) MIMEType() string {
	switch f {
	case PDF:
		return "application/pdf"
	case EPUB:
		return "application/epub+zip"
	case TXT:
		return "text/plain; charset=utf-8"
	case MOBI:
		return "application/x-mobipocket-ebook"
	case AZW3:
		return "application/vnd.amazon.ebook"
	}
	return "application/octet-stream"
}

// NeedsDelegation reports formats that can only be produced or read by a remote converter.
func (f Format) NeedsDelegation() bool {
	switch f {
	case MOBI, AZW3:
		return true
	case PDF, EPUB, TXT:
		return false
	}
	return false
}

// HasReader reports whether a local reader into the document model exists.
func (f Format) HasReader() bool {
	switch f {
	case PDF, EPUB, TXT:
		return true
	case MOBI, AZW3:
		return false
	}
	return false
}

// HasWriter reports whether a local writer from the document model exists.
func (f Format) HasWriter() bool {
	switch f {
	case EPUB, TXT:
		return true
	case PDF, MOBI, AZW3:
		return false
	}
	return false
}

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool { return f >= PDF && f <= AZW3 }

// Parse maps a label such as "EPUB" or ".epub" to a Format.
func Parse(label string) (Format, error) {
	l := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(label), "."))
	for _, f := range All() {
		if f.String() == l {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown format %q", label)
}

// FromFilename parses the extension of name.
func FromFilename(name string) (Format, error) { return Parse(GetExtension(name)) }

// GetExtension returns the lowercase text after the last dot, or "" when there is no dot.
func GetExtension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// BaseName strips the last extension from name. A trailing dot is not an extension.
func BaseName(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return name
	}
	return name[:i]
}

// IsSupported reports whether name carries a supported extension.
func IsSupported(name string) bool {
	_, err := FromFilename(name)
	return err == nil
}

// ReplaceExtension returns name with its last extension swapped for f's.
func ReplaceExtension(name string, f Format) string {
	return BaseName(name) + "." + f.Extension()
}
