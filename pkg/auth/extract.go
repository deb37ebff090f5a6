package auth

import (
	"regexp"
	"strings"
)

var (
	emailPattern    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	emailExact      = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)
	spacesAroundSym = regexp.MustCompile(`\s*([@._-])\s*`)
	passwordPhrase  = regexp.MustCompile(`(?i)(?:my\s+)?password\s+(?:is\s+)?(.+)`)
	passwordFillers = regexp.MustCompile(`(?i)\b(is|the|password)\b`)
	multipleSpaces  = regexp.MustCompile(`\s+`)
)

// Spoken forms of email symbols, longest first so "at the rate of" wins
// over "at".
var spokenSymbols = []struct{ spoken, symbol string }{
	{" at the rate of ", "@"},
	{" at the rate ", "@"},
	{" at sign ", "@"},
	{" at ", "@"},
	{" dot ", "."},
	{" period ", "."},
	{" point ", "."},
	{" underscore ", "_"},
	{" hyphen ", "-"},
	{" dash ", "-"},
}

var emailPrefixes = []string{
	"my email address is ", "my email is ", "the email is ", "email address is ", "email is ",
	"it's ", "it is ", "my email ", "email ",
}

// ExtractEmail finds an email address in an utterance, including dictated
// forms like "jane dot doe at gmail dot com".
func ExtractEmail(utterance string) (string, bool) {
	if m := emailPattern.FindString(utterance); m != "" {
		return strings.ToLower(m), true
	}

	text := " " + multipleSpaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(utterance)), " ") + " "
	text = strings.TrimRight(text, " .!?") + " "
	for _, s := range spokenSymbols {
		text = strings.ReplaceAll(text, s.spoken, s.symbol)
	}
	text = strings.TrimSpace(text)
	for _, p := range emailPrefixes {
		if strings.HasPrefix(text, p) {
			text = text[len(p):]
			break
		}
	}
	text = spacesAroundSym.ReplaceAllString(text, "$1")

	if candidate := strings.ReplaceAll(text, " ", ""); emailExact.MatchString(candidate) {
		return candidate, true
	}
	// Extra words around the address: take the last word run that forms one
	for _, word := range strings.Fields(text) {
		if emailExact.MatchString(word) {
			return word, true
		}
	}
	return "", false
}

// ExtractPassword finds a password in an utterance such as "my password is
// hunter2". An utterance without the keyword is taken whole when it does not
// look like a request. Case is preserved.
func ExtractPassword(utterance string) (string, bool) {
	if m := passwordPhrase.FindStringSubmatch(utterance); m != nil {
		pw := strings.TrimRight(strings.TrimSpace(m[1]), " .!?")
		pw = strings.TrimSpace(multipleSpaces.ReplaceAllString(passwordFillers.ReplaceAllString(pw, ""), " "))
		if pw != "" {
			return pw, true
		}
	}

	clean := strings.TrimRight(strings.TrimSpace(utterance), " .!?")
	if len(clean) <= 3 {
		return "", false
	}
	lower := strings.ToLower(clean)
	for _, w := range []string{"please", "say", "tell", "my"} {
		if strings.Contains(lower, w) {
			return "", false
		}
	}
	return clean, true
}
