// Package normalize turns source-specific free text into canonical field values.
package normalize

import (
	"html"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Text converts an HTML or HTML-encoded string to plain text.
// It first unescapes HTML entities (Greenhouse double-encodes content),
// drops script and style elements, then collapses whitespace.
func Text(content string) string {
	if content == "" {
		return ""
	}
	unescaped := html.UnescapeString(content)
	if !strings.ContainsRune(unescaped, '<') {
		return Whitespace(unescaped)
	}

	// Pad tags so block-level siblings do not run together.
	padded := strings.ReplaceAll(unescaped, "<", " <")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(padded))
	if err != nil {
		return Whitespace(unescaped)
	}
	doc.Find("script, style").Remove()
	return Whitespace(doc.Text())
}

// Whitespace collapses runs of whitespace into single spaces.
func Whitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips diacritics ("Montréal" → "montreal").
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(Whitespace(out))
}

// Tokens splits folded text into word tokens. '+', '#' and inner '.' are kept
// so "c++", "c#" and "node.js" survive.
func Tokens(s string) []string {
	folded := Fold(s)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' || r == '.')
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "in": true, "is": true, "it": true, "of": true,
	"on": true, "or": true, "our": true, "that": true, "the": true, "this": true, "to": true,
	"we": true, "will": true, "with": true, "you": true, "your": true,
}

// Terms returns the distinct non-stopword tokens of s.
func Terms(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range Tokens(s) {
		if stopwords[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
