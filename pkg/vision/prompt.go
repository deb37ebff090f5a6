package vision

import (
	"fmt"
	"strings"
)

// AnalysisPrompt asks for the general screen analysis used on every
// observation.
const AnalysisPrompt = `Analyze this Android screen for a blind user. Describe it in one or two sentences.

Report:
- the main content and purpose
- important buttons such as Continue, Get Started, Next, Accept, OK, Skip, Sign in, Log in
- input fields and search bars
- whether this is a login screen, and its stage: "initial" (email and password), "email_only", "password_only", "other" or "none"
- popups, dialogs and alerts
- the primary action

List clickable elements with the CENTER (x, y) of each in this image's pixel coordinates,
and when you can, its bounding box as [x1, y1, x2, y2].

Respond with JSON only:
{
  "description": "brief description",
  "is_login_screen": false,
  "login_stage": "initial|email_only|password_only|other|none",
  "has_email_field": false,
  "has_password_field": false,
  "has_popup": false,
  "primary_action": "primary button label",
  "elements": [
    {"description": "element", "x": 100, "y": 200, "width": 80, "height": 40, "box": [60, 180, 140, 220], "type": "button|text_field|icon|other", "text": "visible text"}
  ]
}`

// Decision kinds the decision prompt may return.
const (
	DecisionAutoProceed     = "auto_proceed"
	DecisionAskConfirmation = "ask_confirmation"
	DecisionExecuteQuery    = "execute_query"
	DecisionDone            = "done"
)

// DecisionPrompt asks what to do next after an app has opened.
func DecisionPrompt(intent, pendingQuery string) string {
	var sb strings.Builder
	sb.WriteString("An assistant for a blind user just opened an app on this Android screen.\n")
	fmt.Fprintf(&sb, "The user's request was: %q.\n", intent)
	if pendingQuery != "" {
		fmt.Fprintf(&sb, "It still has to type this into the app: %q.\n", pendingQuery)
	}
	sb.WriteString(`
Decide the next step:
- "auto_proceed": a harmless onboarding control (Continue, Next, Get started, Skip, OK) blocks the app. Set "target" to its visible label.
- "ask_confirmation": the next step signs in, pays, sends or deletes something, so the user must agree first. Set "reason".
- "execute_query": the app is ready and has a text input for the request.
- "done": nothing else is needed.

Respond with JSON only:
{"description": "brief description", "decision": "auto_proceed|ask_confirmation|execute_query|done", "target": "label", "reason": "why"}`)
	return sb.String()
}

// ExtractionPrompt asks for the reply a conversational app produced.
func ExtractionPrompt(query string) string {
	return fmt.Sprintf(`A blind user asked an assistant app on this Android screen: %q.
Extract ONLY the answer the app gave. Ignore buttons, input fields, navigation and the question itself.
If the answer is still being generated, return what is visible so far.

Respond with JSON only:
{"response_text": "the answer text, or empty if there is none yet", "description": "brief description of the screen"}`, query)
}

// ReadPrompt asks for a reading of the screen focused on target.
func ReadPrompt(target string) string {
	if strings.TrimSpace(target) == "" {
		return `Read the main content of this Android screen aloud for a blind user. Respond with JSON only: {"description": "the content"}`
	}
	return fmt.Sprintf(`Read the part of this Android screen about %q aloud for a blind user. Respond with JSON only: {"description": "the content"}`, target)
}
