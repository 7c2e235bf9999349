package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/overchat-app/overchat/internal/popup"
)

func TestExtractChatroomID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    int64
		found   bool
	}{
		{"nested chatroom id", `{"chatroom":{"id":5551}}`, 5551, true},
		{"flat chatroom_id", `{"chatroom_id":5551}`, 5551, true},
		{"data array recursion", `{"data":[{"chatroom":{"id":5551}}]}`, 5551, true},
		{"data object recursion", `{"data":{"chatroom_id":5551}}`, 5551, true},
		{"first array match wins", `{"data":[{"user":1},{"chatroom":{"id":7}},{"chatroom":{"id":8}}]}`, 7, true},
		{"chatroom.id beats chatroom_id", `{"chatroom":{"id":1},"chatroom_id":2}`, 1, true},
		{"non-numeric id skipped", `{"chatroom":{"id":"5551"},"chatroom_id":42}`, 42, true},
		{"empty object", `{}`, 0, false},
		{"data array without ids", `{"data":[{"user":1}]}`, 0, false},
		{"scalar data", `{"data":"nope"}`, 0, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, found := extractChatroomID(gjson.Parse(tt.payload))
			if got != tt.want || found != tt.found {
				t.Errorf("extractChatroomID(%s) = (%d, %v), want (%d, %v)", tt.payload, got, found, tt.want, tt.found)
			}
		})
	}
}

func TestParseLoosePayload(t *testing.T) {
	t.Parallel()

	if got := parseLoosePayload([]byte(`{"message":"hi"}`)).Get("message").Str; got != "hi" {
		t.Errorf("valid JSON message = %q, want hi", got)
	}
	if got := parseLoosePayload([]byte("<html>blocked</html>")).Get("message").Str; got != "<html>blocked</html>" {
		t.Errorf("wrapped text message = %q", got)
	}
}

// scriptedSurface is a hidden surface whose page loads immediately and whose
// script execution is canned.
type scriptedSurface struct {
	loaded       chan string
	loadFailures chan popup.LoadFailure
	closed       chan struct{}
	scriptResult string
	scriptErr    error
	ranScript    string
	destroys     atomic.Int32
}

func newScriptedSurface(result string) *scriptedSurface {
	s := &scriptedSurface{
		loaded:       make(chan string, 1),
		loadFailures: make(chan popup.LoadFailure, 1),
		closed:       make(chan struct{}),
		scriptResult: result,
	}
	s.loaded <- "https://kick.com/xyz"
	return s
}

func (s *scriptedSurface) Navigations() <-chan string             { return nil }
func (s *scriptedSurface) LoadFailures() <-chan popup.LoadFailure { return s.loadFailures }
func (s *scriptedSurface) Loaded() <-chan string                  { return s.loaded }
func (s *scriptedSurface) Closed() <-chan struct{}                { return s.closed }
func (s *scriptedSurface) Destroy()                               { s.destroys.Add(1) }

func (s *scriptedSurface) RunScript(ctx context.Context, script string) (string, error) {
	s.ranScript = script
	return s.scriptResult, s.scriptErr
}

type scriptedHost struct {
	surface *scriptedSurface
	opens   atomic.Int32
}

func (h *scriptedHost) Open(ctx context.Context, opts popup.Options) (popup.Surface, error) {
	h.opens.Add(1)
	if !opts.Hidden {
		return nil, errors.New("evasion surface must be hidden")
	}
	return h.surface, nil
}

// directServer serves canned channel responses and counts hits.
func directServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func newTestResolver(server *httptest.Server, browser *BrowserStrategy) *Resolver {
	direct := NewDirectStrategy(server.Client())
	direct.ChannelAPI = server.URL + "/api/v2/channels/%s"
	direct.ChannelPage = server.URL + "/%s"
	return &Resolver{Direct: direct, Browser: browser}
}

func TestResolveEmptySlug(t *testing.T) {
	t.Parallel()

	resolver := &Resolver{}
	for _, slug := range []string{"", "   ", "\t"} {
		if _, err := resolver.ResolveChatroom(context.Background(), slug); !errors.Is(err, ErrEmptySlug) {
			t.Errorf("ResolveChatroom(%q) error = %v, want ErrEmptySlug", slug, err)
		}
	}
}

func TestResolveDirectSuccess(t *testing.T) {
	t.Parallel()

	server, hits := directServer(t, http.StatusOK, `{"chatroom":{"id":5551}}`)
	resolver := newTestResolver(server, nil)

	lookup, err := resolver.ResolveChatroom(context.Background(), "  XYZ ")
	if err != nil {
		t.Fatalf("ResolveChatroom: %v", err)
	}
	if lookup.ChatroomID != 5551 || lookup.Strategy != "direct" || lookup.Slug != "xyz" {
		t.Errorf("lookup = %+v", lookup)
	}
	if lookup.LastStatus != http.StatusOK || lookup.Attempts != 1 {
		t.Errorf("lookup bookkeeping = %+v", lookup)
	}
	if hits.Load() != 1 {
		t.Errorf("direct endpoint hit %d times, want 1", hits.Load())
	}
}

func TestResolveDirectSuccessWithoutID(t *testing.T) {
	t.Parallel()

	server, _ := directServer(t, http.StatusOK, `{"user":{"id":1}}`)
	resolver := newTestResolver(server, nil)

	_, err := resolver.ResolveChatroom(context.Background(), "xyz")
	if !errors.Is(err, ErrChatroomNotFound) {
		t.Fatalf("ResolveChatroom error = %v, want ErrChatroomNotFound", err)
	}
}

func TestResolveNon403FailureDoesNotFallBack(t *testing.T) {
	t.Parallel()

	server, _ := directServer(t, http.StatusNotFound, `{"message":"Channel not found"}`)
	surface := newScriptedSurface("")
	host := &scriptedHost{surface: surface}
	browser := NewBrowserStrategy(host)
	resolver := newTestResolver(server, browser)

	_, err := resolver.ResolveChatroom(context.Background(), "xyz")
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("ResolveChatroom error = %v, want LookupError", err)
	}
	if lookupErr.Message != "Channel not found" || lookupErr.Status != http.StatusNotFound {
		t.Errorf("LookupError = %+v", lookupErr)
	}
	if host.opens.Load() != 0 {
		t.Errorf("browser strategy invoked %d times on a 404, want 0", host.opens.Load())
	}
}

func TestResolve403FallsBackToBrowserOnce(t *testing.T) {
	t.Parallel()

	server, _ := directServer(t, http.StatusForbidden, "")
	outcome := `{"status":200,"body":"{\"chatroom\":{\"id\":777}}","attempts":3}`
	surface := newScriptedSurface(outcome)
	host := &scriptedHost{surface: surface}
	browser := NewBrowserStrategy(host)
	browser.ChannelAPI = server.URL + "/api/v2/channels/%s"
	browser.ChannelPage = server.URL + "/%s"
	resolver := newTestResolver(server, browser)

	lookup, err := resolver.ResolveChatroom(context.Background(), "xyz")
	if err != nil {
		t.Fatalf("ResolveChatroom: %v", err)
	}
	if lookup.ChatroomID != 777 || lookup.Strategy != "browser" {
		t.Errorf("lookup = %+v, want chatroom 777 via browser", lookup)
	}
	if lookup.Attempts != 4 {
		t.Errorf("Attempts = %d, want 1 direct + 3 in-page", lookup.Attempts)
	}
	if host.opens.Load() != 1 {
		t.Errorf("browser strategy invoked %d times, want exactly 1", host.opens.Load())
	}
	if surface.destroys.Load() == 0 {
		t.Error("hidden surface was not destroyed")
	}
}

func TestResolve403BrowserAlsoBlocked(t *testing.T) {
	t.Parallel()

	server, _ := directServer(t, http.StatusForbidden, "")
	outcome := `{"status":403,"body":"{\"message\":\"blocked\"}","attempts":8}`
	surface := newScriptedSurface(outcome)
	browser := NewBrowserStrategy(&scriptedHost{surface: surface})
	browser.ChannelAPI = server.URL + "/api/v2/channels/%s"
	browser.ChannelPage = server.URL + "/%s"
	resolver := newTestResolver(server, browser)

	_, err := resolver.ResolveChatroom(context.Background(), "xyz")
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("ResolveChatroom error = %v, want LookupError", err)
	}
	if lookupErr.Message != "blocked" || lookupErr.Status != http.StatusForbidden {
		t.Errorf("LookupError = %+v", lookupErr)
	}
}

func TestResolve403WithoutBrowserStrategy(t *testing.T) {
	t.Parallel()

	server, _ := directServer(t, http.StatusForbidden, "")
	resolver := newTestResolver(server, nil)

	_, err := resolver.ResolveChatroom(context.Background(), "xyz")
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("ResolveChatroom error = %v, want LookupError", err)
	}
	if lookupErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", lookupErr.Status)
	}
}

func TestBrowserStrategySurfaceClosed(t *testing.T) {
	t.Parallel()

	surface := newScriptedSurface("")
	<-surface.loaded // swallow the load signal
	close(surface.closed)
	browser := NewBrowserStrategy(&scriptedHost{surface: surface})

	_, err := browser.Lookup(context.Background(), "xyz")
	if err == nil || !strings.Contains(err.Error(), "closed") {
		t.Fatalf("Lookup error = %v, want closure failure", err)
	}
	if surface.destroys.Load() == 0 {
		t.Error("surface not destroyed on closure")
	}
}

func TestBrowserStrategyScriptParameters(t *testing.T) {
	t.Parallel()

	outcome := `{"status":200,"body":"{\"chatroom_id\":1}","attempts":1}`
	surface := newScriptedSurface(outcome)
	browser := NewBrowserStrategy(&scriptedHost{surface: surface})

	if _, err := browser.Lookup(context.Background(), "xyz"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	script := surface.ranScript
	for _, want := range []string{
		"const maxAttempts = 8",
		"const delayMs = 1200",
		fmt.Sprintf("%q", fmt.Sprintf(ChannelAPIURL, "xyz")),
		`credentials: "same-origin"`,
		"last.status !== 403",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q", want)
		}
	}
}
