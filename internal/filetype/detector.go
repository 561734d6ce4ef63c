package filetype

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/local/ebookconv/internal/converr"
	"github.com/local/ebookconv/internal/format"
)

// Info contains detected content information for a source file
type Info struct {
	MIMEType    string
	Extension   string
	Declared    format.Format
	Matches     bool
	Description string
}

// Detector sniffs source bytes using magic numbers, not the filename
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect sniffs data and compares it against the declared format.
func (d *Detector) Detect(data []byte, declared format.Format) *Info {
	mtype := mimetype.Detect(data)

	info := &Info{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
		Declared:  declared,
	}
	d.classify(info, mtype)

	log.Debug().
		Str("mime", info.MIMEType).
		Str("declared", declared.String()).
		Bool("matches", info.Matches).
		Msg("detected file type")
	return info
}

// Verify returns a read failure when the bytes clearly are not the declared format.
// MOBI and AZW3 are handed to a remote converter untouched and are never rejected here.
func (d *Detector) Verify(data []byte, declared format.Format) error {
	info := d.Detect(data, declared)
	if info.Matches {
		return nil
	}
	switch declared {
	case format.MOBI, format.AZW3:
		log.Warn().Str("mime", info.MIMEType).Str("declared", declared.String()).Msg("content does not look like a Mobipocket book; delegating anyway")
		return nil
	case format.PDF, format.EPUB, format.TXT:
		return converr.ReadFailure(declared, fmt.Errorf("content detected as %s", info.MIMEType))
	}
	return converr.ReadFailure(declared, fmt.Errorf("unknown format"))
}

// classify decides whether the sniffed type is acceptable for the declared format
func (d *Detector) classify(info *Info, mtype *mimetype.MIME) {
	switch info.Declared {
	// PDF must carry the %PDF- signature
	case format.PDF:
		info.Matches = is(mtype, "application/pdf")
		info.Description = "PDF document"

	// EPUB is a ZIP; sniffers only report epub when the mimetype entry comes first
	case format.EPUB:
		info.Matches = is(mtype, "application/epub+zip") || is(mtype, "application/zip")
		info.Description = "EPUB publication"

	// Plain text, any charset
	case format.TXT:
		info.Matches = is(mtype, "text/plain")
		info.Description = "Plain text file"

	// Palm database with a BOOKMOBI header
	case format.MOBI, format.AZW3:
		info.Matches = is(mtype, "application/x-mobipocket-ebook")
		info.Description = "Mobipocket/Kindle book"

	default:
		info.Matches = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}

// is reports whether mtype or one of its parents is the given MIME type
func is(mtype *mimetype.MIME, want string) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is(want) {
			return true
		}
	}
	return false
}
