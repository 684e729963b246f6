package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const requestTimeout = 5 * time.Second

// Client talks to the accounts service for the two lookups the chat server
// needs: whether a staff account's subscription tier allows opening rooms,
// and participant display names. Everything else about accounts stays on
// the other side of this boundary.
type Client interface {
	IsRoomCreationAllowed(ctx context.Context, ownerIdentityID int64) (bool, error)
	ParticipantName(ctx context.Context, identityID int64) (string, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) Client {
	return &httpClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type eligibilityResponse struct {
	Allowed bool `json:"allowed"`
}

func (c *httpClient) IsRoomCreationAllowed(ctx context.Context, ownerIdentityID int64) (bool, error) {
	var resp eligibilityResponse
	url := fmt.Sprintf("%s/internal/accounts/%d/chat-eligibility", c.baseURL, ownerIdentityID)
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return false, err
	}
	return resp.Allowed, nil
}

type nameResponse struct {
	Name string `json:"name"`
}

func (c *httpClient) ParticipantName(ctx context.Context, identityID int64) (string, error) {
	var resp nameResponse
	url := fmt.Sprintf("%s/internal/accounts/%d/display-name", c.baseURL, identityID)
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

func (c *httpClient) getJSON(ctx context.Context, url string, dest any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("url", url).
			Dur("elapsed", elapsed).
			Msg("directory request error")
		return fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Str("url", url).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("directory request failed")
		return fmt.Errorf("directory responded with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode directory response: %w", err)
	}
	return nil
}
