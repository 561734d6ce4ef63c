package ir

import "strings"

// FromText classifies each non-blank line of text into a section.
// The explicit title wins when non-empty, then the first heading line, then UntitledTitle.
func FromText(text, title string) Document {
	doc := Document{}
	firstHeading := ""
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		kind := Paragraph
		if IsHeadingLine(line) {
			kind = Heading
			if firstHeading == "" {
				firstHeading = line
			}
		}
		doc.Sections = append(doc.Sections, Section{Kind: kind, Text: line})
	}

	switch {
	case strings.TrimSpace(title) != "":
		doc.Title = title
	case firstHeading != "":
		doc.Title = firstHeading
	default:
		doc.Title = UntitledTitle
	}
	return doc
}

// ToText renders headings surrounded by blank lines and paragraphs as-is.
func ToText(doc Document) string {
	parts := make([]string, 0, len(doc.Sections))
	for _, s := range doc.Sections {
		if s.Kind == Heading {
			parts = append(parts, "\n"+s.Text+"\n")
			continue
		}
		parts = append(parts, s.Text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
