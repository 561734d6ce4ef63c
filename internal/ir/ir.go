// Package ir holds the document model every local conversion passes through.
package ir

import "strings"

// Kind tags a section as a heading or a body paragraph.
type Kind int

const (
	Paragraph Kind = iota
	Heading
)

func (k Kind) String() string {
	switch k {
	case Heading:
		return "heading"
	case Paragraph:
		return "paragraph"
	}
	return "unknown"
}

// UntitledTitle is used when neither an explicit title nor a heading line exists.
const UntitledTitle = "Untitled"

// HeadingMaxLen is the exclusive rune-length bound for heading lines.
const HeadingMaxLen = 40

// Section is one classified block of text. Order within a Document is reading order.
type Section struct {
	Kind Kind
	Text string
}

// Document is created per conversion, consumed by exactly one writer and then dropped.
type Document struct {
	Title    string
	Sections []Section
}

// sentence terminators; a line ending in one of these is never a heading
var terminators = []string{"。", ".", "，"}

// IsHeadingLine reports whether an already trimmed, non-empty line classifies as a heading.
func IsHeadingLine(line string) bool {
	if len([]rune(line)) >= HeadingMaxLen {
		return false
	}
	for _, t := range terminators {
		if strings.HasSuffix(line, t) {
			return false
		}
	}
	return true
}
