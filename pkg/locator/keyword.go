package locator

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/devicelab-dev/droidpilot/pkg/uitree"
)

// fold normalizes s for case-insensitive comparison. A Caser holds state,
// so a fresh one is used per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// shortKeyword is the length up to which a keyword must match a whole word.
// "ok" and "up" occur inside too many ordinary words.
const shortKeyword = 3

// ByKeyword returns the first non-input element, in document order, whose
// text, content description, resource id or child text contains any keyword.
func ByKeyword(elements []uitree.ClickableElement, keywords ...string) (Match, bool) {
	folded := foldAll(keywords)
	if len(folded) == 0 {
		return Match{}, false
	}
	for _, e := range elements {
		if e.IsInput() {
			continue
		}
		if containsAny(e, folded) {
			return matchOf(e, StrategyKeyword), true
		}
	}
	return Match{}, false
}

func foldAll(keywords []string) []string {
	var result []string
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k != "" {
			result = append(result, fold(k))
		}
	}
	return result
}

// resourceName drops the "package:id/" prefix of a resource id.
func resourceName(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func fields(e uitree.ClickableElement) []string {
	return []string{e.Text, e.ContentDesc, resourceName(e.ResourceID), e.ChildText}
}

func containsAny(e uitree.ClickableElement, folded []string) bool {
	return fieldsContain(fields(e), folded)
}

func fieldsContain(values []string, folded []string) bool {
	for _, f := range values {
		if f == "" {
			continue
		}
		ff := fold(f)
		for _, k := range folded {
			if containsKeyword(ff, k) {
				return true
			}
		}
	}
	return false
}

// containsKeyword reports whether k occurs in s. Short keywords must be
// bounded by non-alphanumeric runes or the ends of s.
func containsKeyword(s, k string) bool {
	if utf8.RuneCountInString(k) > shortKeyword {
		return strings.Contains(s, k)
	}
	for from := 0; from <= len(s)-len(k); {
		i := strings.Index(s[from:], k)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(k)
		if wordBoundaryBefore(s, start) && wordBoundaryAfter(s, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func wordBoundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func wordBoundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// equalsAny is the exact-match variant, used for single-glyph labels.
func equalsAny(e uitree.ClickableElement, folded []string) bool {
	for _, f := range fields(e) {
		ff := strings.TrimSpace(fold(f))
		for _, k := range folded {
			if ff == k {
				return true
			}
		}
	}
	return false
}
