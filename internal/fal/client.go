// Package fal is a thin client for the fal.run image-generation API.
package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"

	"github.com/printmint/cardpress/internal/apperr"
	"github.com/printmint/cardpress/internal/config"
)

const (
	downloadAttempts = 3
	downloadBackoff  = time.Second
)

type Client struct {
	apiKey     string
	baseURL    string
	modelPath  string
	httpClient *http.Client
	log        *slog.Logger
}

type GenerateOptions struct {
	Prompt string
	Width  int
	Height int
}

// Result is the provider's view of one finished generation.
type Result struct {
	ImageURL    string
	Width       int
	Height      int
	ContentType string
	Seed        int64
	NsfwFlags   []bool
	Raw         string
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:    cfg.FALAPIKey,
		baseURL:   strings.TrimRight(cfg.FALBaseURL, "/"),
		modelPath: cfg.FALModelPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type generateResponse struct {
	Images []struct {
		URL         string `json:"url"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		ContentType string `json:"content_type"`
	} `json:"images"`
	Timings         map[string]any `json:"timings"`
	Seed            int64          `json:"seed"`
	HasNsfwConcepts []bool         `json:"has_nsfw_concepts"`
	Prompt          string         `json:"prompt"`
}

// Generate submits a prompt and image size and waits for the finished image.
func (c *Client) Generate(ctx context.Context, opts GenerateOptions) (*Result, error) {
	payload := map[string]any{
		"prompt": opts.Prompt,
		"image_size": map[string]int{
			"width":  opts.Width,
			"height": opts.Height,
		},
		"num_images":            1,
		"enable_safety_checker": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	fullURL := c.baseURL + c.modelPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log.Info("requesting image generation", "url", fullURL, "width", opts.Width, "height", opts.Height)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.UpstreamUnavailable(fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode >= 300 {
		c.log.Error("generation request failed", "status", resp.StatusCode, "body", truncateBody(rawBody))
		return nil, classifyStatus(resp.StatusCode, fmt.Errorf("fal error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody)))
	}

	var parsed generateResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, apperr.UpstreamUnavailable(fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(rawBody)))
	}
	if len(parsed.Images) == 0 {
		return nil, apperr.UpstreamUnavailable(errors.New("no images in provider response"))
	}

	img := parsed.Images[0]
	result := &Result{
		ImageURL:    img.URL,
		Width:       img.Width,
		Height:      img.Height,
		ContentType: img.ContentType,
		Seed:        parsed.Seed,
		NsfwFlags:   parsed.HasNsfwConcepts,
		Raw:         string(rawBody),
	}
	if result.Width == 0 {
		result.Width = opts.Width
	}
	if result.Height == 0 {
		result.Height = opts.Height
	}
	if result.ContentType == "" {
		result.ContentType = "image/png"
	}

	c.log.Info("image generated", "seed", result.Seed, "url", result.ImageURL)
	return result, nil
}

// Download fetches the generated image bytes. The read is idempotent, so it is
// retried a bounded number of times with a fixed delay.
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, string, error) {
	var data []byte
	var contentType string

	backoff := retry.WithMaxRetries(downloadAttempts-1, retry.NewConstant(downloadBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("download status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("download status %d", resp.StatusCode)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		contentType = resp.Header.Get("Content-Type")
		return nil
	})
	if err != nil {
		return nil, "", classifyTransportError(fmt.Errorf("download image: %w", err))
	}
	return data, contentType, nil
}

func classifyStatus(status int, cause error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return apperr.UpstreamRateLimited(cause)
	case status == http.StatusGatewayTimeout:
		return apperr.UpstreamTimeout(cause)
	default:
		return apperr.UpstreamUnavailable(cause)
	}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.UpstreamTimeout(err)
	}
	return apperr.UpstreamUnavailable(err)
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	// Back up to a rune boundary so the cut never splits a multi-byte rune.
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
