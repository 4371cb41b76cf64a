package matching

import (
	"strings"
	"unicode"
)

// designations expands the abbreviations the alert feed uses for reserve types.
var designations = map[string]string{
	"np":  "national park",
	"nr":  "nature reserve",
	"sca": "state conservation area",
	"rp":  "regional park",
	"hs":  "historic site",
	"aa":  "aboriginal area",
	"kcr": "karst conservation reserve",
}

// Canonical reduces a name to the form both sides are compared in: lower
// case, punctuation dropped, whitespace collapsed, "&" spelled out and
// a trailing designation abbreviation expanded.
func Canonical(name string) string {
	s := strings.ToLower(name)
	s = strings.NewReplacer("&", " and ", "'", "", "’", "", ".", "").Replace(s)

	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if n := len(tokens); n > 1 {
		if long, ok := designations[tokens[n-1]]; ok {
			tokens[n-1] = long
		}
	}
	return strings.Join(tokens, " ")
}
