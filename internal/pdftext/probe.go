package pdftext

import (
	"regexp"
	"sort"
)

// DefaultThreshold is the number of non-space characters a sample must reach
// for a PDF to count as having a text layer.
const DefaultThreshold = 300

var whitespaceRegex = regexp.MustCompile(`\s+`)

// PageProbe captures the result of probing a single page.
type PageProbe struct {
	PageIndex int `json:"page_index"`
	CharCount int `json:"char_count"`
}

// Diagnostics describes a text-extractability check.
type Diagnostics struct {
	TotalPages         int         `json:"total_pages"`
	SampledPages       []int       `json:"sampled_pages"`
	TotalCharsInSample int         `json:"total_chars_in_sample"`
	Threshold          int         `json:"threshold"`
	Probes             []PageProbe `json:"probes"`
	HasExtractableText bool        `json:"has_extractable_text"`
}

// Probe samples extracted page texts and reports whether they carry real text.
// Documents whose whole text is shorter than threshold still pass when every sampled page has text.
func Probe(pages []string, threshold int) Diagnostics {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	diag := Diagnostics{TotalPages: len(pages), Threshold: threshold, SampledPages: sampleIndices(len(pages))}

	allPagesHaveText := len(diag.SampledPages) > 0
	for _, idx := range diag.SampledPages {
		n := len([]rune(whitespaceRegex.ReplaceAllString(pages[idx], "")))
		diag.Probes = append(diag.Probes, PageProbe{PageIndex: idx, CharCount: n})
		diag.TotalCharsInSample += n
		if n == 0 {
			allPagesHaveText = false
		}
		if diag.TotalCharsInSample >= threshold {
			break
		}
	}
	diag.HasExtractableText = diag.TotalCharsInSample >= threshold || allPagesHaveText
	return diag
}

// sampleIndices picks all pages of short documents, otherwise first, quartiles, middle and last.
func sampleIndices(total int) []int {
	if total <= 0 {
		return []int{}
	}
	if total <= 5 {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	set := map[int]struct{}{0: {}, total / 4: {}, total / 2: {}, 3 * total / 4: {}, total - 1: {}}
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
