package agent

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		text string
		want ParsedAction
	}{
		{"open chatgpt and ask what is the capital of france", OpenApp{App: "chatgpt", Query: "what is the capital of france"}},
		{"Open ChatGPT and tell me a joke", OpenApp{App: "chatgpt", Query: "a joke"}},
		{"open gmail and login", OpenApp{App: "gmail", WantsLogin: true}},
		{"open the settings please", OpenApp{App: "settings"}},
		{"ＯＰＥＮ Ｇｍａｉｌ", OpenApp{App: "gmail"}},

		{"open whatsapp and send message to mummy say hi", SendMessage{App: "whatsapp", Recipient: "mummy", Message: "hi"}},
		{"send message to mom on whatsapp saying I'm late", SendMessage{App: "whatsapp", Recipient: "mom", Message: "i'm late"}},
		{"send a whatsapp message", SendMessage{App: "whatsapp", CurrentChat: true}},

		{"open paytm and send 10 rupees to keshav", SendPayment{App: "paytm", Amount: "10", Recipient: "keshav"}},
		{"pay 100 to john via gpay", SendPayment{App: "gpay", Amount: "100", Recipient: "john"}},
		{"pay ₹50 to my mom on phonepe", SendPayment{App: "phonepe", Amount: "50", Recipient: "mom"}},

		{"close chatgpt", CloseApp{App: "chatgpt"}},
		{"close the app", CloseApp{}},
		{"stop the app", CloseApp{}},

		{"tap on the login button", Login{}},
		{"click send", TapElement{Target: "send"}},
		{"press the continue button", TapElement{Target: "continue"}},
		{"log in", Login{}},

		{"search for pizza near me", Search{Query: "pizza near me"}},
		{"read the screen", Extract{}},
		{"read the headline", Extract{Target: "headline"}},

		{"tell me a joke", Query{Text: "a joke"}},
		{"what is the weather", Query{Text: "what is the weather"}},
		{"   ", Query{}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ParseIntent(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseIntent(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestTokensHasIsWordBounded(t *testing.T) {
	tk := tokenize("Please reopen the settings")
	assert.False(t, tk.has("open"))
	assert.True(t, tk.has("the settings"))
	assert.False(t, tk.has("set"))
}

func TestTextAfter(t *testing.T) {
	got, ok := textAfter("please tell me the time.", "tell me")
	assert.True(t, ok)
	assert.Equal(t, "the time", got)

	_, ok = textAfter("telling stories", "tell")
	assert.False(t, ok)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "nothing", describe(nil))
	assert.Equal(t, "pay 5 to asha", describe(SendPayment{App: "paytm", Amount: "5", Recipient: "asha"}))
	assert.Equal(t, "close the app", describe(CloseApp{}))
}
