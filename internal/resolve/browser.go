package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/overchat-app/overchat/internal/popup"
)

// Evasion loop policy: the in-page loop absorbs transient anti-automation
// blocking, retrying only while the endpoint keeps answering 403.
const (
	defaultEvasionAttempts = 8
	defaultEvasionDelay    = 1200 * time.Millisecond
	defaultEvasionTimeout  = 25 * time.Second
)

// BrowserStrategy retries a blocked channel lookup from inside a hidden
// browsing surface. The channel's public page is loaded first, then a fetch
// loop runs in the page's own script context, so the request carries the
// page's cookies and session and passes anti-automation checks that are tied
// to page context.
type BrowserStrategy struct {
	// Host opens the hidden surface. Its surfaces must implement
	// popup.ScriptRunner.
	Host popup.Host
	// ChannelAPI and ChannelPage override the endpoint templates for tests.
	ChannelAPI  string
	ChannelPage string
	// Attempts, Delay and Timeout override the loop policy for tests.
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// NewBrowserStrategy returns a browser strategy with the production endpoint
// templates and loop policy.
func NewBrowserStrategy(host popup.Host) *BrowserStrategy {
	return &BrowserStrategy{
		Host:        host,
		ChannelAPI:  ChannelAPIURL,
		ChannelPage: ChannelPageURL,
		Attempts:    defaultEvasionAttempts,
		Delay:       defaultEvasionDelay,
		Timeout:     defaultEvasionTimeout,
	}
}

// Lookup opens the hidden surface, waits for the channel page to finish
// loading, and runs the in-page fetch loop. The whole operation is bounded by
// an absolute timeout; timeout, user closure, and load failure all resolve as
// failures, and the surface is destroyed exactly once whichever signal fires
// first.
func (b *BrowserStrategy) Lookup(ctx context.Context, slug string) (*strategyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	pageURL := fmt.Sprintf(b.ChannelPage, slug)
	surface, err := b.Host.Open(ctx, popup.Options{URL: pageURL, Hidden: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open hidden surface: %w", err)
	}
	destroy := sync.OnceFunc(surface.Destroy)
	defer destroy()

	runner, ok := surface.(popup.ScriptRunner)
	if !ok {
		return nil, errors.New("surface host cannot run page scripts")
	}

	// Wait for the channel page itself before scripting against it.
	select {
	case <-surface.Loaded():
	case failure := <-surface.LoadFailures():
		return nil, fmt.Errorf("channel page failed to load: %s", failure.Description)
	case <-surface.Closed():
		return nil, errors.New("hidden surface was closed before the page loaded")
	case <-ctx.Done():
		return nil, fmt.Errorf("channel page load timed out: %w", ctx.Err())
	}

	script := b.fetchLoopScript(slug)
	raw, err := runner.RunScript(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("in-page lookup failed: %w", err)
	}

	outcome := gjson.Parse(raw)
	status := int(outcome.Get("status").Int())
	attempts := int(outcome.Get("attempts").Int())
	log.Debugf("resolve: browser lookup for %s finished with status %d after %d attempts", slug, status, attempts)

	return &strategyResult{
		status:   status,
		payload:  parseLoosePayload([]byte(outcome.Get("body").Str)),
		attempts: attempts,
	}, nil
}

// fetchLoopScript builds the page-context loop: bounded attempts against the
// channel endpoint with a fixed delay, stopping early on the first response
// that is not a 403. The script resolves with the final attempt's outcome.
func (b *BrowserStrategy) fetchLoopScript(slug string) string {
	endpoint := fmt.Sprintf(b.ChannelAPI, slug)
	return fmt.Sprintf(`(async () => {
  const maxAttempts = %d;
  const delayMs = %d;
  const last = { status: 0, body: "", attempts: 0 };
  for (let i = 1; i <= maxAttempts; i++) {
    last.attempts = i;
    try {
      const resp = await fetch(%q, {
        credentials: "same-origin",
        headers: { "Accept": "application/json" },
      });
      last.status = resp.status;
      last.body = await resp.text();
    } catch (err) {
      last.status = 0;
      last.body = JSON.stringify({ message: String(err) });
    }
    if (last.status !== 403) {
      break;
    }
    if (i < maxAttempts) {
      await new Promise((resolve) => setTimeout(resolve, delayMs));
    }
  }
  return JSON.stringify(last);
})()`, b.Attempts, b.Delay.Milliseconds(), endpoint)
}
