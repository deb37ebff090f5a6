package agent

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalizeText folds case and compatibility forms and collapses whitespace,
// so "ＯＰＥＮ  Gmail" and "open gmail" parse the same.
func normalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}

// span is a word and its byte offsets in the text it came from.
type span struct {
	word       string
	start, end int
}

// tokens is a normalized utterance with its word spans.
type tokens struct {
	text  string
	spans []span
}

func tokenize(s string) tokens {
	t := tokens{text: normalizeText(s)}
	start := -1
	for i, r := range t.text {
		switch {
		case isWordRune(r) && start < 0:
			start = i
		case !isWordRune(r) && start >= 0:
			t.spans = append(t.spans, span{word: t.text[start:i], start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		t.spans = append(t.spans, span{word: t.text[start:], start: start, end: len(t.text)})
	}
	return t
}

func (t tokens) words() []string {
	out := make([]string, len(t.spans))
	for i, s := range t.spans {
		out[i] = s.word
	}
	return out
}

// has reports whether any phrase occurs in the text as whole words.
func (t tokens) has(phrases ...string) bool {
	for _, p := range phrases {
		if wordIndex(t.text, p) >= 0 {
			return true
		}
	}
	return false
}

// after returns the text following the first marker found, trying markers
// in order.
func (t tokens) after(markers ...string) (string, bool) {
	return textAfter(t.text, markers...)
}

// index returns the position of the first span equal to one of words.
func (t tokens) index(words ...string) int {
	for i, s := range t.spans {
		for _, w := range words {
			if s.word == w {
				return i
			}
		}
	}
	return -1
}

// wordIndex finds phrase in s where it starts and ends on word boundaries.
func wordIndex(s, phrase string) int {
	if phrase == "" {
		return -1
	}
	for off := 0; off < len(s); {
		i := strings.Index(s[off:], phrase)
		if i < 0 {
			return -1
		}
		i += off
		end := i + len(phrase)
		before, _ := utf8.DecodeLastRuneInString(s[:i])
		next, _ := utf8.DecodeRuneInString(s[end:])
		if (i == 0 || !isWordRune(before)) && (end == len(s) || !isWordRune(next)) {
			return i
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		off = i + size
	}
	return -1
}

func textAfter(s string, markers ...string) (string, bool) {
	for _, m := range markers {
		if i := wordIndex(s, m); i >= 0 {
			return trimEnd(s[i+len(m):]), true
		}
	}
	return "", false
}

// trimEnd drops surrounding space and trailing sentence punctuation.
func trimEnd(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), " .!?,")
}

var (
	loginPhrases   = []string{"login", "log in", "sign in", "signin", "authenticate"}
	tapVerbs       = map[string]bool{"tap": true, "click": true, "press": true, "touch": true}
	tapFillers     = map[string]bool{"button": true, "the": true, "a": true, "an": true}
	closeVerbs     = []string{"close", "exit", "quit", "stop"}
	closeSkipWords = map[string]bool{"app": true, "application": true, "the": true, "this": true, "it": true, "current": true}

	// Words that end an app name after "open".
	openStopWords = map[string]bool{
		"and": true, "then": true, "to": true, "for": true, "ask": true,
		"search": true, "find": true, "login": true, "sign": true,
	}
	openFillers = map[string]bool{
		"you": true, "pretty": true, "please": true, "the": true, "a": true,
		"an": true, "very": true, "so": true, "app": true,
	}

	extractPhrases = []string{
		"extract", "read", "what does it say", "what's on the screen",
		"what is on the screen", "describe the screen",
	}
	screenWords = map[string]bool{"screen": true, "this": true, "it": true, "page": true, "the screen": true, "this screen": true}
)

// ParseIntent classifies a command. Rules are tried in order and the first
// that fits wins; anything unclassified becomes a Query against the
// current app.
func ParseIntent(text string) ParsedAction {
	t := tokenize(text)
	if len(t.spans) == 0 {
		return Query{}
	}

	if a, ok := parseWhatsApp(t); ok {
		return a
	}
	if a, ok := parsePayment(t); ok {
		return a
	}
	if a, ok := parseClose(t); ok {
		return a
	}
	if a, ok := parseTap(t); ok {
		return a
	}
	if a, ok := parseOpen(t); ok {
		return a
	}
	if t.has(loginPhrases...) {
		return Login{}
	}
	if q, ok := t.after("search for", "search", "find"); ok && q != "" {
		return Search{Query: q}
	}
	if q, ok := queryFrom(t.text); ok && q != "" {
		return Query{Text: q}
	}
	if t.has(extractPhrases...) {
		target, _ := t.after("read", "extract")
		target = strings.TrimPrefix(target, "the ")
		if screenWords[target] {
			target = ""
		}
		return Extract{Target: target}
	}
	return Query{Text: trimEnd(t.text)}
}

// queryFrom extracts a question from "tell me X", "ask X", "search X" or
// "tell X".
func queryFrom(s string) (string, bool) {
	if q, ok := textAfter(s, "tell me", "ask", "search for", "search"); ok {
		return q, true
	}
	if q, ok := textAfter(s, "tell"); ok {
		return strings.TrimPrefix(q, "me "), true
	}
	return "", false
}

var messageMarkers = []string{" say ", " saying ", " tell ", " that ", " with message ", " message "}

// recipientStop ends a recipient name.
var recipientStop = map[string]bool{
	"on": true, "in": true, "via": true, "using": true, "through": true,
	"with": true, "from": true, "and": true,
}

func parseWhatsApp(t tokens) (ParsedAction, bool) {
	if !t.has("whatsapp") || !t.has("send", "message") {
		return nil, false
	}
	a := SendMessage{App: "whatsapp"}

	if _, after, ok := strings.Cut(t.text, " to "); ok {
		padded := " " + after + " "
		found := false
		for _, m := range messageMarkers {
			if r, msg, ok := strings.Cut(padded, m); ok {
				a.Recipient, a.Message = recipientName(r), trimEnd(msg)
				found = true
				break
			}
		}
		if !found {
			if f := strings.Fields(after); len(f) > 0 {
				a.Recipient = trimEnd(f[0])
			}
		}
	}

	if a.Recipient == "" {
		if i := t.index("message"); i >= 0 {
			rest := t.spans[i+1:]
			if len(rest) > 1 && rest[0].word == "to" {
				rest = rest[1:]
			}
			if len(rest) > 0 && rest[0].word != "whatsapp" {
				a.Recipient = rest[0].word
				if len(rest) > 1 {
					tail := t.text[rest[1].start:]
					if msg, ok := textAfter(tail, "say", "saying"); ok {
						a.Message = msg
					} else {
						a.Message = trimEnd(tail)
					}
				}
			}
		}
	}

	a.CurrentChat = a.Recipient == ""
	return a, true
}

// recipientName keeps the words of a name up to a stop word, so "mom on
// whatsapp" becomes "mom".
func recipientName(s string) string {
	var out []string
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ".,!?")
		if recipientStop[w] || w == "whatsapp" {
			break
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

var paymentApps = []struct {
	name    string
	aliases []string
}{
	{"paytm", []string{"paytm"}},
	{"gpay", []string{"gpay", "google pay"}},
	{"phonepe", []string{"phonepe", "phone pe"}},
	{"bhim", []string{"bhim"}},
}

var (
	paymentKeywords = []string{"send", "pay", "transfer", "rupees", "rupee", "rs", "inr", "money"}

	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:\brs\.?|\brupees?\b|₹|\binr\b)\s*(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:rs\b|rupees?\b|₹|inr\b)`),
		regexp.MustCompile(`\b(?:pay|send|transfer)\s+(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s+(?:to|for)\b`),
	}

	paymentStop = map[string]bool{
		"on": true, "via": true, "using": true, "through": true, "and": true,
		"with": true, "from": true, "paytm": true, "gpay": true, "google": true,
		"phonepe": true, "phone": true, "bhim": true,
	}
	leadingArticles = map[string]bool{"my": true, "the": true, "a": true, "an": true}
)

func parsePayment(t tokens) (ParsedAction, bool) {
	app := ""
	for _, p := range paymentApps {
		if t.has(p.aliases...) {
			app = p.name
			break
		}
	}
	if app == "" || !(t.has(paymentKeywords...) || strings.Contains(t.text, "₹")) {
		return nil, false
	}

	a := SendPayment{App: app}
	for _, re := range amountPatterns {
		if m := re.FindStringSubmatch(t.text); m != nil {
			a.Amount = m[1]
			break
		}
	}

	if _, after, ok := strings.Cut(t.text, " to "); ok {
		var name []string
		for _, w := range strings.Fields(after) {
			w = strings.Trim(w, ".,!?")
			if len(name) == 0 && leadingArticles[w] {
				continue
			}
			if paymentStop[w] || isNumber(w) {
				break
			}
			name = append(name, w)
		}
		a.Recipient = strings.Join(name, " ")
	}
	return a, true
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}

func parseClose(t tokens) (ParsedAction, bool) {
	i := t.index(closeVerbs...)
	if i < 0 {
		return nil, false
	}
	var rest []string
	for _, s := range t.spans[i+1:] {
		if !closeSkipWords[s.word] {
			rest = append(rest, s.word)
		}
	}
	leading := i == 0 && t.spans[0].word != "stop"
	if !t.has("app", "application") && !(leading && len(rest) > 0) {
		return nil, false
	}
	return CloseApp{App: strings.Join(rest, " ")}, true
}

func parseTap(t tokens) (ParsedAction, bool) {
	if t.has("open") {
		return nil, false
	}
	for i, s := range t.spans {
		if !tapVerbs[s.word] {
			continue
		}
		rest := t.spans[i+1:]
		if len(rest) > 0 && rest[0].word == "on" {
			rest = rest[1:]
		}
		var target []string
		for _, r := range rest {
			if !tapFillers[r.word] {
				target = append(target, r.word)
			}
		}
		if len(target) == 0 {
			continue
		}
		name := strings.Join(target, " ")
		if (tokens{text: name}).has(loginPhrases...) {
			return Login{}, true
		}
		return TapElement{Target: name}, true
	}
	return nil, false
}

func parseOpen(t tokens) (ParsedAction, bool) {
	i := t.index("open")
	if i < 0 {
		return nil, false
	}

	var app []string
	k := i + 1
	for ; k < len(t.spans); k++ {
		w := t.spans[k].word
		if openStopWords[w] {
			break
		}
		if !openFillers[w] {
			app = append(app, w)
		}
	}
	if len(app) == 0 {
		return nil, false
	}

	a := OpenApp{App: strings.Join(app, " ")}
	if k >= len(t.spans) {
		return a, true
	}
	rest := t.text[t.spans[k].start:]
	if strings.HasPrefix(rest, "and ") {
		rest = rest[len("and "):]
	} else if strings.HasPrefix(rest, "then ") {
		rest = rest[len("then "):]
	}

	if q, ok := queryFrom(rest); ok && q != "" {
		a.Query = q
		return a, true
	}
	if (tokens{text: rest}).has(loginPhrases...) || strings.HasPrefix(rest, "sign") {
		a.WantsLogin = true
	}
	return a, true
}
