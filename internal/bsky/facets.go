package bsky

import "unicode"

const tagFeatureType = "app.bsky.richtext.facet#tag"

// Facet annotates a byte range of the post text with rich-text features.
// Offsets are UTF-8 byte positions, not rune positions: the network
// resolves facets against the encoded text.
type Facet struct {
	Index    ByteSlice `json:"index"`
	Features []Feature `json:"features"`
}

type ByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type Feature struct {
	Type string `json:"$type"`
	Tag  string `json:"tag,omitempty"`
}

// ScanTags finds hashtags in the post body and returns one tag facet per
// occurrence. A hashtag starts with '#' at the beginning of the text or
// after whitespace, continues through letters, digits, underscores, and
// hyphens, and must contain at least one non-digit.
func ScanTags(text string) []Facet {
	var facets []Facet

	runes := []rune(text)
	byteAt := make([]int, len(runes)+1)
	offset := 0
	for i, r := range runes {
		byteAt[i] = offset
		offset += len(string(r))
	}
	byteAt[len(runes)] = offset

	for i := 0; i < len(runes); i++ {
		if runes[i] != '#' {
			continue
		}
		if i > 0 && !unicode.IsSpace(runes[i-1]) {
			continue
		}

		end := i + 1
		hasNonDigit := false
		for end < len(runes) && isTagRune(runes[end]) {
			if !unicode.IsDigit(runes[end]) {
				hasNonDigit = true
			}
			end++
		}
		if end == i+1 || !hasNonDigit {
			i = end - 1
			continue
		}

		facets = append(facets, Facet{
			Index: ByteSlice{ByteStart: byteAt[i], ByteEnd: byteAt[end]},
			Features: []Feature{
				{Type: tagFeatureType, Tag: string(runes[i+1 : end])},
			},
		})
		i = end - 1
	}

	return facets
}

func isTagRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}
