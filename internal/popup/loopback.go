package popup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoopbackHost is the production Host for OAuth sign-in: it opens the start
// URL in the user's default browser and runs a loopback HTTP server that
// captures the provider's redirect. Each request the server receives is
// surfaced to the session as a pending navigation. Implicit-grant providers
// return tokens in the URL fragment, which never reaches an HTTP server, so
// bare requests are answered with a small relay page that re-requests the
// callback with the fragment converted to a query string.
//
// A loopback surface cannot observe the browser tab, so it never emits Loaded
// or Closed signals and does not implement ScriptRunner; abandonment is
// handled by the caller's context.
type LoopbackHost struct {
	// Port is the local port the callback server listens on. It must agree
	// with the port in the configured redirect URI.
	Port int

	// OpenURL launches the user's browser at the sign-in URL. Defaults to
	// the system browser; tests override it.
	OpenURL func(url string) error
}

// Open starts the callback server and launches the system browser at
// opts.URL. Hidden surfaces are not supported on a loopback host.
func (h *LoopbackHost) Open(ctx context.Context, opts Options) (Surface, error) {
	if opts.Hidden {
		return nil, errors.New("loopback host cannot open hidden surfaces")
	}
	if h.Port <= 0 {
		return nil, errors.New("loopback host requires a callback port")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", h.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is not available: %w", h.Port, err)
	}

	surface := &loopbackSurface{
		navigations:  make(chan string, 1),
		loadFailures: make(chan LoadFailure, 1),
		loaded:       make(chan string, 1),
		closed:       make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", surface.handleCallback)
	surface.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if errServe := surface.server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			log.Errorf("popup: callback server stopped: %v", errServe)
		}
	}()

	log.Debugf("popup: callback server listening on %s", addr)

	openURL := h.OpenURL
	if openURL == nil {
		openURL = openBrowser
	}
	if err = openURL(opts.URL); err != nil {
		surface.Destroy()
		return nil, err
	}
	return surface, nil
}

type loopbackSurface struct {
	server       *http.Server
	navigations  chan string
	loadFailures chan LoadFailure
	loaded       chan string
	closed       chan struct{}
	destroyOnce  sync.Once
}

func (s *loopbackSurface) Navigations() <-chan string       { return s.navigations }
func (s *loopbackSurface) LoadFailures() <-chan LoadFailure { return s.loadFailures }
func (s *loopbackSurface) Loaded() <-chan string            { return s.loaded }
func (s *loopbackSurface) Closed() <-chan struct{}          { return s.closed }

// Destroy shuts the callback server down. Safe to call more than once.
func (s *loopbackSurface) Destroy() {
	s.destroyOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Debugf("popup: callback server shutdown: %v", err)
		}
	})
}

// handleCallback turns inbound requests into navigation events. Requests
// without a query string may still carry provider parameters in the fragment,
// so they get the relay page instead of an event.
func (s *loopbackSurface) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.RawQuery == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fragmentRelayHTML))
		return
	}

	target := "http://" + r.Host + r.URL.RequestURI()
	select {
	case s.navigations <- target:
		log.Debug("popup: callback captured")
	default:
		// A navigation is already pending; the session resolves once.
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(signInCompleteHTML))
}

// fragmentRelayHTML re-requests the callback with the URL fragment converted
// to a query string so the server can observe implicit-grant parameters. When
// there is no fragment the redirect carried nothing for us and the page just
// tells the user to close the tab.
const fragmentRelayHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Signing in...</title></head>
<body>
<p>Completing sign-in...</p>
<script>
  if (window.location.hash.length > 1) {
    window.location.replace(
      window.location.pathname + "?" + window.location.hash.substring(1));
  } else {
    document.body.innerHTML = "<p>Nothing to complete. You can close this window.</p>";
  }
</script>
</body>
</html>`

const signInCompleteHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Sign-in complete</title></head>
<body>
<p>Sign-in complete. You can close this window and return to the app.</p>
</body>
</html>`
