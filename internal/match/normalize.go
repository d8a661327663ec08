package match

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	htmlTagRe = regexp.MustCompile(`<[^>]*>`)
	nonWordRe = regexp.MustCompile(`[^a-z0-9]+`)

	apostrophes  = strings.NewReplacer("’", "'", "‘", "'")
	contractions = strings.NewReplacer(
		"won't", "will not",
		"can't", "can not",
		"n't", " not",
	)
)

// Normalize returns the comparison form of a title: HTML tags stripped,
// entities unescaped, accents folded, lowercased, contractions expanded and
// whitespace collapsed. The display title on the record is left untouched.
func Normalize(title string) string {
	s := htmlTagRe.ReplaceAllString(title, " ")
	s = html.UnescapeString(s)
	s = strings.ToLower(foldAccents(s))
	s = contractions.Replace(apostrophes.Replace(s))
	return strings.Join(strings.Fields(s), " ")
}

// foldAccents strips combining marks. The transformer is stateful, so one
// is built per call.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// wordsOf splits normalized text into alphanumeric words.
func wordsOf(normalized string) []string {
	return strings.Fields(nonWordRe.ReplaceAllString(normalized, " "))
}
