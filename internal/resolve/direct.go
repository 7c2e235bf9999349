package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Default Kick public channel endpoints. The %s is the channel slug.
const (
	ChannelAPIURL  = "https://kick.com/api/v2/channels/%s"
	ChannelPageURL = "https://kick.com/%s"
)

// browserUserAgent matches the Firefox fingerprint the transport presents on
// the wire; a mismatched UA string is itself an automation signal.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:130.0) Gecko/20100101 Firefox/130.0"

// DirectStrategy performs a single unauthenticated request against the public
// channel-info endpoint, dressed as ordinary browser traffic.
type DirectStrategy struct {
	// HTTPClient should be the browser-fingerprint client in production.
	HTTPClient *http.Client
	// ChannelAPI and ChannelPage override the endpoint templates for tests.
	ChannelAPI  string
	ChannelPage string
}

// NewDirectStrategy returns a direct strategy against the production
// endpoints.
func NewDirectStrategy(client *http.Client) *DirectStrategy {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &DirectStrategy{
		HTTPClient:  client,
		ChannelAPI:  ChannelAPIURL,
		ChannelPage: ChannelPageURL,
	}
}

// Lookup issues the channel-info request. Any HTTP response, including an
// anti-bot block, is a strategy result; only a transport-level failure is an
// error.
func (d *DirectStrategy) Lookup(ctx context.Context, slug string) (*strategyResult, error) {
	endpoint := fmt.Sprintf(d.ChannelAPI, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", fmt.Sprintf(d.ChannelPage, slug))

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("channel request failed: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("failed to close response body: %v", errClose)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel response: %w", err)
	}

	log.Debugf("resolve: direct lookup for %s returned status %d", slug, resp.StatusCode)
	return &strategyResult{
		status:   resp.StatusCode,
		payload:  parseLoosePayload(body),
		attempts: 1,
	}, nil
}

// parseLoosePayload parses a response body as JSON. An unparsable body is not
// fatal: it is coerced into a message-bearing object so later message
// extraction still works on anti-bot HTML pages and plain-text errors.
func parseLoosePayload(body []byte) gjson.Result {
	if gjson.ValidBytes(body) {
		return gjson.ParseBytes(body)
	}
	wrapped, err := json.Marshal(map[string]string{"message": string(body)})
	if err != nil {
		return gjson.Parse("{}")
	}
	return gjson.ParseBytes(wrapped)
}
