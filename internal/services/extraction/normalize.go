package extraction

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// corporateSuffixes are trimmed from entity names for deduplication keys.
// The original surface form is what gets stored.
var corporateSuffixes = []string{
	"inc", "inc.", "incorporated",
	"corp", "corp.", "corporation",
	"llc", "l.l.c.", "ltd", "ltd.", "limited",
	"co", "co.", "company",
	"gmbh", "plc", "sa", "ag",
}

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeEntityName produces the dedup key for an entity name: lowercased,
// accents stripped, corporate suffixes removed, whitespace collapsed.
func NormalizeEntityName(name string) string {
	stripped, _, err := transform.String(accentStripper, name)
	if err != nil {
		stripped = name
	}

	lower := strings.ToLower(strings.TrimSpace(stripped))
	fields := strings.Fields(lower)

	for len(fields) > 1 {
		last := strings.Trim(fields[len(fields)-1], ",")
		if !isCorporateSuffix(last) {
			break
		}
		fields = fields[:len(fields)-1]
	}

	return strings.Join(fields, " ")
}

func isCorporateSuffix(word string) bool {
	for _, s := range corporateSuffixes {
		if word == s {
			return true
		}
	}
	return false
}
