package agent

import (
	"regexp"
	"strings"
)

var (
	// Shapes that are always commands, however short.
	commandShapes = []*regexp.Regexp{
		regexp.MustCompile(`open\s+\w+\s+(?:and\s+)?(?:send|message|pay|transfer|ask|tell|search|find|tap|click)`),
		regexp.MustCompile(`open\s+(?:whatsapp|paytm|gmail|chatgpt|chrome|youtube|settings|phone|camera)`),
		regexp.MustCompile(`(?:send\s+message|message)\s+(?:to\s+)?\w+`),
	}

	noisePhrases = []string{
		"unfortunately", "didn't work", "that didn't", "not working", "it failed",
		"oh no", "oops", "hmm", "umm", "uh", "ah", "err", "let me think",
		"i don't know", "i'm not sure", "maybe later", "never mind", "forget it",
		"what was that", "excuse me", "sorry", "pardon", "i see", "interesting",
		"that's nice", "that's good", "that's bad", "too bad", "oh well",
		"wait", "hold on", "one moment", "just a second", "let me see",
	}

	commandKeywords = []string{
		"open", "close", "launch", "start", "exit", "quit",
		"go", "navigate", "back", "home", "scroll",
		"tap", "click", "press", "touch", "select", "choose",
		"type", "enter", "input", "search", "find",
		"send", "message", "call", "email",
		"pay", "transfer", "send money", "rupees", "rs",
		"ask", "tell", "what is", "how to", "show me",
		"login", "log in", "sign in", "authenticate",
		"whatsapp", "paytm", "gmail", "chatgpt", "chrome", "youtube", "settings",
		"read", "extract",
	}

	actionVerbs = []string{
		"tap", "click", "press", "touch", "select", "choose", "open", "close",
		"launch", "start", "search", "find", "tell", "ask", "extract", "get",
		"show", "display", "navigate", "go", "login", "log in", "sign in", "authenticate",
		"type", "enter", "input", "send", "submit", "pay", "transfer", "message", "read",
	}

	uiWords = []string{
		"button", "login", "sign in", "field", "input", "text field", "search bar",
		"menu", "option", "link", "icon", "tab",
	}

	greetings = []string{
		"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
		"greetings", "howdy", "what's up", "sup", "hola", "bonjour",
	}
	agentQuestions = []string{
		"who are you", "what are you", "what can you do", "help",
		"what can you help", "how are you", "how do you work", "what do you do",
	}
	casualWords = []string{"thanks", "thank you", "okay", "ok", "sure", "yes", "no", "maybe", "alright"}
)

// IsConversational reports whether an utterance is chat or background noise
// rather than a command. Such input gets a canned reply and never touches
// the device.
func IsConversational(text string) bool {
	t := tokenize(text)
	if len(t.spans) == 0 {
		return true
	}
	for _, re := range commandShapes {
		if re.MatchString(t.text) {
			return false
		}
	}
	if t.has(noisePhrases...) {
		return true
	}
	if !t.has(commandKeywords...) {
		return true
	}
	if t.has(actionVerbs...) || t.has(uiWords...) {
		return false
	}
	if t.has(greetings...) || t.has(agentQuestions...) || t.has(casualWords...) {
		return true
	}

	words := t.words()
	unique := make(map[string]bool, len(words))
	for _, w := range words {
		unique[w] = true
	}
	return len(unique) <= 3 && len(words) <= 5
}

const (
	replyGreeting = "Hello! I'm your mobile automation assistant. How can I help you today?"
	replyAbout    = "I'm a mobile automation assistant for blind users. I can open apps, search for information, " +
		"handle sign-in, and navigate your Android device by voice. Try saying 'Open Gmail' or 'Open Settings' to get started."
	replyHowAreYou = "I'm doing well, thank you for asking! I'm ready to help you with your device. What would you like me to do?"
	replyThanks    = "You're welcome! Is there anything else I can help you with?"
	replyDefault   = "I'm here to help! You can ask me to open apps, search for things, or navigate your device. " +
		"For example, say 'Open Gmail' or 'Open Settings'."
)

// ConversationReply is the canned answer to conversational input.
func ConversationReply(text string) string {
	t := tokenize(text)
	switch {
	case t.has("hello", "hi", "hey", "good morning", "good afternoon", "good evening"):
		return replyGreeting
	case t.has("what can you do", "what are you", "who are you", "help"):
		return replyAbout
	case t.has("how are you"):
		return replyHowAreYou
	case t.has("thanks", "thank you"):
		return replyThanks
	default:
		return replyDefault
	}
}

var (
	loginConfirmPhrases = []string{
		"log in", "login", "sign in", "signin",
		"yes", "yeah", "yep", "yup", "okay", "ok", "sure", "alright",
		"proceed", "go ahead", "continue", "do it",
	}
	loginConfirmWords = []string{"yes", "okay", "ok", "sure", "proceed", "continue", "go"}
)

// IsLoginConfirmation reports whether the user agreed to sign in after a
// login prompt, e.g. "yes", "log in" or "go ahead".
func IsLoginConfirmation(text string) bool {
	t := tokenize(text)
	if isNegative(t) {
		return false
	}
	if t.has(loginConfirmPhrases...) {
		return true
	}
	return len(t.spans) <= 3 && t.has(loginConfirmWords...)
}

var (
	affirmatives = []string{"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "go ahead", "confirm", "do it", "proceed"}
	negatives    = []string{"no", "nope", "don't", "do not", "cancel", "stop", "not"}
)

// cancelPhrases abandon whatever the agent is waiting for.
var cancelPhrases = []string{"cancel", "never mind", "nevermind", "forget it", "stop", "abort"}

// maxCancelWords bounds how long a cancel request may be, so that a spoken
// answer merely containing "stop" is not taken for one.
const maxCancelWords = 4

// isCancel reports whether text asks to abandon the current exchange.
func isCancel(text string) bool {
	t := tokenize(text)
	return len(t.spans) <= maxCancelWords && t.has(cancelPhrases...)
}

func isNegative(t tokens) bool {
	return t.has(negatives...)
}

// isAffirmative reports whether a confirmation answer is a yes. Anything
// negative or unrecognized is a no.
func isAffirmative(text string) bool {
	t := tokenize(text)
	return !isNegative(t) && t.has(affirmatives...)
}

var (
	sessionEndPhrases = []string{"exit", "quit", "stop", "cancel", "go back", "end session"}
	closePrefixes     = []string{"close app", "close the app"}
)

// sessionClose checks an utterance made during a sticky session against the
// phrases that end it. closeApp is set when the app itself should also be
// closed ("close app", "close chatgpt").
func sessionClose(text, app string) (end, closeApp bool) {
	t := tokenize(text)
	phrases := closePrefixes
	if app != "" {
		phrases = append(append([]string(nil), closePrefixes...), "close "+app)
	}
	if t.has(phrases...) {
		return true, true
	}
	return len(t.spans) <= maxCancelWords && t.has(sessionEndPhrases...), false
}

var (
	explicitRecipient = []*regexp.Regexp{
		regexp.MustCompile(`send\s+message\s+to\s+(\w+)`),
		regexp.MustCompile(`message\s+to\s+(\w+)`),
		regexp.MustCompile(`message\s+(\w+)\s+(?:say|saying|tell|ask)\b`),
	}
	tellPrefix = regexp.MustCompile(`^tell\s+(?:him|her|them)\s+(?:that\s+)?`)
	sayPrefix  = regexp.MustCompile(`^say\s+(?:that\s+)?`)

	followUpCommands = []string{"open", "close", "search", "find", "go", "back", "home", "settings", "exit", "stop"}
)

// parseWhatsAppFollowUp reads an utterance made while a WhatsApp chat is
// open. By default the whole utterance is a message to the open chat; only
// "send message to X", "message to X" or "message X say Y" address someone
// else. ok is false for short command-like input.
func parseWhatsAppFollowUp(text string) (msg SendMessage, ok bool) {
	t := tokenize(text)
	clean := trimEnd(t.text)
	if len(clean) < 3 {
		return SendMessage{}, false
	}
	msg = SendMessage{App: "whatsapp", CurrentChat: true}

	for _, re := range explicitRecipient {
		m := re.FindStringSubmatchIndex(clean)
		if m == nil {
			continue
		}
		msg.Recipient = clean[m[2]:m[3]]
		msg.CurrentChat = false
		rest := clean[m[3]:]
		if body, found := textAfter(rest, "say", "saying", "tell", "ask", "asking"); found {
			msg.Message = body
		} else {
			msg.Message = trimEnd(rest)
		}
		break
	}

	if msg.CurrentChat {
		body := tellPrefix.ReplaceAllString(clean, "")
		body = strings.TrimSpace(sayPrefix.ReplaceAllString(body, ""))
		if body == "" {
			body = clean
		}
		if bt := tokenize(body); len(bt.spans) <= 3 && bt.has(followUpCommands...) {
			return SendMessage{}, false
		}
		msg.Message = body
	}

	if msg.Message == "" {
		return SendMessage{}, false
	}
	return msg, true
}
