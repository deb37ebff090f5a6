package vision

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

type call struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

// fakeGenerator returns scripted replies in order, repeating the last one.
type fakeGenerator struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   []call
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, call{model: model, contents: contents, config: config})

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	text := ""
	if len(f.replies) > 0 {
		text = f.replies[len(f.replies)-1]
		if i < len(f.replies) {
			text = f.replies[i]
		}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(text, genai.RoleModel)}},
	}, nil
}

func (f *fakeGenerator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testClient(gen generator) *Client {
	c := newClient(gen, Options{Model: "test-model"})
	c.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	return c
}

func TestClient_Describe(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{"description": "Settings app", "has_popup": true}`}}
	c := testClient(gen)

	d, err := c.Describe(context.Background(), pngOf(t, 540, 1200), "")
	require.NoError(t, err)
	assert.Equal(t, "Settings app", d.Text)
	assert.True(t, d.Flags.HasPopup)
	assert.Equal(t, 540, d.ImageWidth)
	assert.Equal(t, 1200, d.ImageHeight)

	require.Equal(t, 1, gen.count())
	got := gen.calls[0]
	assert.Equal(t, "test-model", got.model)
	require.NotNil(t, got.config.Temperature)
	assert.Equal(t, float32(0), *got.config.Temperature)
	assert.Equal(t, "application/json", got.config.ResponseMIMEType)

	require.Len(t, got.contents, 1)
	parts := got.contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/png", parts[0].InlineData.MIMEType)
	assert.Equal(t, AnalysisPrompt, parts[1].Text)
}

func TestClient_Describe_CustomPrompt(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{"response_text": "42"}`}}
	c := testClient(gen)

	d, err := c.Describe(context.Background(), pngOf(t, 10, 20), ExtractionPrompt("meaning of life"))
	require.NoError(t, err)
	assert.Equal(t, "42", d.Text)
	assert.Contains(t, gen.calls[0].contents[0].Parts[1].Text, "meaning of life")
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	gen := &fakeGenerator{
		errs:    []error{genai.APIError{Code: 503, Message: "overloaded"}, errors.New("connection reset")},
		replies: []string{"", "", `{"description": "ok"}`},
	}
	c := testClient(gen)

	d, err := c.Describe(context.Background(), pngOf(t, 10, 10), "")
	require.NoError(t, err)
	assert.Equal(t, "ok", d.Text)
	assert.Equal(t, 3, gen.count())
}

func TestClient_ClientErrorIsPermanent(t *testing.T) {
	gen := &fakeGenerator{errs: []error{genai.APIError{Code: 400, Message: "bad image"}}}
	c := testClient(gen)

	_, err := c.Describe(context.Background(), pngOf(t, 10, 10), "")
	assert.ErrorIs(t, err, core.ErrActionExecutionFailed)
	assert.Equal(t, 1, gen.count())
}

func TestClient_RateLimitIsRetried(t *testing.T) {
	gen := &fakeGenerator{
		errs:    []error{genai.APIError{Code: 429, Message: "quota"}},
		replies: []string{"", `{"description": "after quota"}`},
	}
	c := testClient(gen)

	d, err := c.Describe(context.Background(), pngOf(t, 10, 10), "")
	require.NoError(t, err)
	assert.Equal(t, "after quota", d.Text)
}

func TestClient_EmptyRepliesExhaustRetries(t *testing.T) {
	gen := &fakeGenerator{replies: []string{""}}
	c := testClient(gen)

	_, err := c.Describe(context.Background(), pngOf(t, 10, 10), "")
	assert.ErrorIs(t, err, core.ErrActionExecutionFailed)
	assert.Equal(t, 3, gen.count())
}

func TestClient_BadImage(t *testing.T) {
	gen := &fakeGenerator{}
	c := testClient(gen)

	_, err := c.Describe(context.Background(), []byte("garbage"), "")
	assert.ErrorIs(t, err, core.ErrParse)
	assert.Equal(t, 0, gen.count())
}

func TestClient_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(&fakeGenerator{}).Describe(ctx, pngOf(t, 10, 10), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestNewClient_Defaults(t *testing.T) {
	c := newClient(&fakeGenerator{}, Options{RequestsPerMinute: 60})
	assert.Equal(t, DefaultModel, c.Model())
	assert.InDelta(t, 1.0, float64(c.limiter.Limit()), 1e-9)
}
