// Package membership talks to the external subscription provider.
package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/printmint/cardpress/internal/apperr"
	"github.com/printmint/cardpress/internal/models"
)

const (
	fetchAttempts = 3
	fetchBackoff  = time.Second
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type statusResponse struct {
	Tier string `json:"tier"`
}

// FetchTier asks the subscription provider for the caller's current tier.
// The accessToken is the user's own credential with the provider; this
// service never holds provider accounts itself. Status reads are idempotent
// and retried with a fixed delay.
func (c *Client) FetchTier(ctx context.Context, accessToken string) (models.MembershipTier, error) {
	if c.baseURL == "" {
		// No provider configured: everyone is a non-member.
		return models.MembershipNone, nil
	}

	var tier models.MembershipTier
	backoff := retry.WithMaxRetries(fetchAttempts-1, retry.NewConstant(fetchBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("membership status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("membership status %d", resp.StatusCode)
		}

		var parsed statusResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode membership response: %w", err)
		}
		tier = normalizeTier(parsed.Tier)
		return nil
	})
	if err != nil {
		c.log.Error("membership fetch failed", "err", err)
		return models.MembershipNone, apperr.UpstreamUnavailable(fmt.Errorf("fetch membership: %w", err))
	}
	return tier, nil
}

func normalizeTier(raw string) models.MembershipTier {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return models.MembershipActive
	case "former":
		return models.MembershipFormer
	default:
		return models.MembershipNone
	}
}
