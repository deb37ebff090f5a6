// Package vision implements the description service on top of Gemini.
//
// Replies are advisory: element coordinates are in the screenshot's image
// space and must go through coords before they are tapped.
package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// generator is the part of *genai.Models the client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options configures a Client.
type Options struct {
	APIKey            string
	Model             string
	RequestsPerMinute int           // <= 0 disables rate limiting
	MaxElapsedTime    time.Duration // Retry budget per request, 0 uses 45s
	MaxRetries        uint64        // 0 uses 3
}

// Client implements core.Describer.
type Client struct {
	gen        generator
	model      string
	limiter    *rate.Limiter
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

var _ core.Describer = (*Client)(nil)

// New creates a Gemini-backed client.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, core.ErrInvalidConfig.WithMessage("vision: a Gemini API key is required (--api-key or GEMINI_API_KEY)")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("vision: create gemini client: %w", err)
	}
	return newClient(gc.Models, opts), nil
}

func newClient(gen generator, opts Options) *Client {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}

	maxElapsed := opts.MaxElapsedTime
	if maxElapsed == 0 {
		maxElapsed = 45 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &Client{
		gen:     gen,
		model:   model,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("vision"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = maxElapsed
			return backoff.WithMaxRetries(b, maxRetries)
		},
	}
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// Describe sends the screenshot and prompt and parses the reply. An empty
// prompt uses AnalysisPrompt.
func (c *Client) Describe(ctx context.Context, img []byte, prompt string) (*core.Description, error) {
	w, h, err := ImageSize(img)
	if err != nil {
		return nil, err
	}
	if prompt == "" {
		prompt = AnalysisPrompt
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img, "image/png"),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}

	var text string
	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		start := time.Now()
		resp, err := c.gen.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			return classify(err)
		}
		if resp == nil {
			return errors.New("description service returned no response")
		}
		out := resp.Text()
		if out == "" {
			return errors.New("description service returned no text")
		}

		c.logger.Debug("description received",
			zap.String("model", c.model),
			zap.Int("attempt", attempt),
			zap.Duration("duration", time.Since(start)),
			zap.Int("chars", len(out)),
		)
		text = out
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn("description request failed, retrying",
			zap.Error(err), zap.Int("attempt", attempt), zap.Duration("next", next))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, core.ErrActionExecutionFailed.WithMessage("description service unavailable").WithCause(err)
	}

	return Parse(text, w, h)
}

// classify marks client errors other than rate limiting as permanent.
func classify(err error) error {
	if code := statusCode(err); code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	return err
}

func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}
