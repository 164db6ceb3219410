package bluesky

import (
	"regexp"
	"strings"
)

var (
	linkPattern = regexp.MustCompile(`https?://[^\s]+`)
	tagPattern  = regexp.MustCompile(`(^|\s)#([\p{L}\p{N}_]+)`)
)

// DetectFacets finds links and hashtags in text and returns byte-range
// facets for them. Offsets are byte offsets, as the lexicon requires.
func DetectFacets(text string) []Facet {
	var facets []Facet

	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		uri := text[start:end]

		// URLs at sentence ends drag punctuation along; strip it.
		trimmed := strings.TrimRight(uri, `.,;:!?)'"`)
		end -= len(uri) - len(trimmed)
		if trimmed == "" {
			continue
		}

		facets = append(facets, Facet{
			Index: ByteSlice{ByteStart: start, ByteEnd: end},
			Features: []FacetFeature{
				{Type: "app.bsky.richtext.facet#link", URI: trimmed},
			},
		})
	}

	for _, loc := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		// group 2 is the tag body, the '#' sits right before it
		tagStart, tagEnd := loc[4], loc[5]
		if tagStart < 0 {
			continue
		}
		facets = append(facets, Facet{
			Index: ByteSlice{ByteStart: tagStart - 1, ByteEnd: tagEnd},
			Features: []FacetFeature{
				{Type: "app.bsky.richtext.facet#tag", Tag: text[tagStart:tagEnd]},
			},
		})
	}

	return facets
}
