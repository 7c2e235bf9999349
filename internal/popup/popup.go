// Package popup drives short-lived, isolated browsing surfaces used to
// capture OAuth redirects and to run page-context scripts. The surface itself
// is provided by a Host; this package owns the session lifecycle and
// guarantees that each session resolves exactly once.
package popup

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/overchat-app/overchat/internal/urlmatch"
)

// LoadFailure describes a navigation that the surface failed to complete.
type LoadFailure struct {
	// URL is the address whose load failed.
	URL string
	// Description is the host-supplied failure reason, may be empty.
	Description string
}

// Surface is a single isolated browsing surface opened by a Host. Its channels
// deliver the three signal classes a session cares about; they must stay open
// until Destroy is called.
type Surface interface {
	// Navigations delivers the target URL of every pending navigation or
	// redirect before it commits.
	Navigations() <-chan string
	// LoadFailures delivers failed loads. Some providers terminate the
	// callback navigation with a load error on success, so a failure for a
	// URL matching the redirect URI still counts as a match.
	LoadFailures() <-chan LoadFailure
	// Loaded delivers the URL of every completed page load.
	Loaded() <-chan string
	// Closed is closed when the user dismisses the surface.
	Closed() <-chan struct{}
	// Destroy tears the surface down. It must be safe to call more than once.
	Destroy()
}

// Options controls how a Host opens a surface.
type Options struct {
	// URL is the address the surface initially navigates to.
	URL string
	// Hidden opens the surface without presenting it to the user.
	Hidden bool
}

// Host opens isolated, script-capable browsing surfaces. Implementations must
// isolate the surface's scripting context from host privileges.
type Host interface {
	Open(ctx context.Context, opts Options) (Surface, error)
}

// ScriptRunner is an optional Host surface capability: execute a script inside
// the surface's page context and return its string result. Surfaces that
// support it make same-origin requests possible from within the page, carrying
// the page's own cookies and session state.
type ScriptRunner interface {
	RunScript(ctx context.Context, script string) (string, error)
}

// Session resolves a single OAuth redirect capture. It opens a surface at a
// start URL and waits until exactly one terminal signal fires.
type Session struct {
	host Host
}

// NewSession returns a session backed by the given host.
func NewSession(host Host) *Session {
	return &Session{host: host}
}

// Run opens a surface at startURL and blocks until one of the following
// resolves the session: a pending navigation or a failed load whose URL
// matches redirectURI (returns that URL), the user closing the surface
// (ErrPopupClosed), the initial load failing (ErrPopupLaunchFailed), a later
// navigation failing (ErrNavigationFailed), or ctx expiring. The surface is
// destroyed before Run returns, whichever signal fired first.
func (s *Session) Run(ctx context.Context, startURL, redirectURI string) (string, error) {
	surface, err := s.host.Open(ctx, Options{URL: startURL})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPopupLaunchFailed, err)
	}
	defer surface.Destroy()

	for {
		select {
		case target := <-surface.Navigations():
			if urlmatch.Matches(target, redirectURI) {
				log.Debugf("popup: matched redirect on navigation to %s", redirectTail(target))
				return target, nil
			}
		case failure := <-surface.LoadFailures():
			if urlmatch.Matches(failure.URL, redirectURI) {
				// Navigation to the callback aborted by the provider;
				// the URL still carries the response parameters.
				log.Debugf("popup: matched redirect on load failure")
				return failure.URL, nil
			}
			if failure.URL == startURL {
				return "", launchFailure(failure)
			}
			return "", navigationFailure(failure)
		case <-surface.Loaded():
			// Completed loads of intermediate pages (consent screens,
			// provider interstitials) are not terminal.
		case <-surface.Closed():
			return "", ErrPopupClosed
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrPopupClosed, ctx.Err())
		}
	}
}

func launchFailure(f LoadFailure) error {
	if f.Description != "" {
		return fmt.Errorf("%w: %s", ErrPopupLaunchFailed, f.Description)
	}
	return ErrPopupLaunchFailed
}

func navigationFailure(f LoadFailure) error {
	if f.Description != "" {
		return fmt.Errorf("%w: %s loading %s", ErrNavigationFailed, f.Description, f.URL)
	}
	return fmt.Errorf("%w: %s", ErrNavigationFailed, f.URL)
}

// redirectTail trims a matched URL for logging so tokens carried in the query
// or fragment never reach the log output.
func redirectTail(matched string) string {
	for i := 0; i < len(matched); i++ {
		if matched[i] == '?' || matched[i] == '#' {
			return matched[:i] + "..."
		}
	}
	return matched
}
