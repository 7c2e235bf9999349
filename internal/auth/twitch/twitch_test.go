package twitch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/overchat-app/overchat/internal/auth"
	"github.com/overchat-app/overchat/internal/popup"
)

const testRedirectURI = "http://localhost:52780/auth/twitch"

// echoSurface replays a redirect built from the authorize URL the flow
// requested, letting tests echo or corrupt the state nonce.
type echoSurface struct {
	navigations chan string
	closed      chan struct{}
}

func (s *echoSurface) Navigations() <-chan string             { return s.navigations }
func (s *echoSurface) LoadFailures() <-chan popup.LoadFailure { return nil }
func (s *echoSurface) Loaded() <-chan string                  { return nil }
func (s *echoSurface) Closed() <-chan struct{}                { return s.closed }
func (s *echoSurface) Destroy()                               {}

// echoHost inspects the authorize URL and responds with a canned redirect,
// substituting the request's real state for the {state} placeholder.
type echoHost struct {
	redirectTemplate string
	authorizeURL     string
}

func (h *echoHost) Open(ctx context.Context, opts popup.Options) (popup.Surface, error) {
	h.authorizeURL = opts.URL
	parsed, err := url.Parse(opts.URL)
	if err != nil {
		return nil, err
	}
	state := parsed.Query().Get("state")

	surface := &echoSurface{navigations: make(chan string, 1), closed: make(chan struct{})}
	surface.navigations <- strings.ReplaceAll(h.redirectTemplate, "{state}", state)
	return surface, nil
}

func TestSignInGuestWhenClientIDMissing(t *testing.T) {
	t.Parallel()

	// A host that fails loudly if any popup is opened.
	flow := NewFlow(nil)
	flow.HTTPClient = nil // any network call would panic too

	tokens, err := flow.SignIn(context.Background(), "   ", testRedirectURI, nil)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if !tokens.IsGuest {
		t.Error("IsGuest = false, want true")
	}
	if tokens.AccessToken != "" {
		t.Errorf("AccessToken = %q, want empty for guest", tokens.AccessToken)
	}
	if !regexp.MustCompile(`^justinfan\d{5}$`).MatchString(tokens.Username) {
		t.Errorf("Username = %q, want justinfan with 5-digit suffix", tokens.Username)
	}
}

func TestSignInSuccess(t *testing.T) {
	t.Parallel()

	validate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "OAuth abc" {
			t.Errorf("Authorization header = %q, want %q", got, "OAuth abc")
		}
		_, _ = w.Write([]byte(`{"login":"alice"}`))
	}))
	defer validate.Close()

	host := &echoHost{redirectTemplate: testRedirectURI + "#access_token=abc&state={state}"}
	flow := NewFlow(host)
	flow.ValidateBaseURL = validate.URL

	tokens, err := flow.SignIn(context.Background(), "client-1", testRedirectURI, []string{"chat:read", "chat:edit"})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if tokens.AccessToken != "abc" || tokens.Username != "alice" || tokens.IsGuest {
		t.Errorf("tokens = %+v, want accessToken=abc username=alice isGuest=false", tokens)
	}

	authorize, err := url.Parse(host.authorizeURL)
	if err != nil {
		t.Fatalf("authorize URL: %v", err)
	}
	q := authorize.Query()
	if q.Get("response_type") != "token" {
		t.Errorf("response_type = %q, want token", q.Get("response_type"))
	}
	if q.Get("force_verify") != "true" {
		t.Errorf("force_verify = %q, want true", q.Get("force_verify"))
	}
	if q.Get("scope") != "chat:read chat:edit" {
		t.Errorf("scope = %q, want space-joined scopes", q.Get("scope"))
	}
	if len(q.Get("state")) < 32 {
		t.Errorf("state %q is too short", q.Get("state"))
	}
}

func TestSignInStateMismatchRejectsValidToken(t *testing.T) {
	t.Parallel()

	host := &echoHost{redirectTemplate: testRedirectURI + "#access_token=abc&state=tampered"}
	flow := NewFlow(host)

	_, err := flow.SignIn(context.Background(), "client-1", testRedirectURI, nil)
	if !errors.Is(err, auth.ErrStateMismatch) {
		t.Fatalf("SignIn error = %v, want ErrStateMismatch", err)
	}
}

func TestSignInProviderError(t *testing.T) {
	t.Parallel()

	host := &echoHost{redirectTemplate: testRedirectURI + "?error=access_denied&error_description=user+said+no&state={state}"}
	flow := NewFlow(host)

	_, err := flow.SignIn(context.Background(), "client-1", testRedirectURI, nil)
	var providerErr *auth.ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("SignIn error = %v, want ProviderError", err)
	}
	if providerErr.Description != "user said no" {
		t.Errorf("Description = %q, want provider-supplied text", providerErr.Description)
	}
}

func TestSignInMissingToken(t *testing.T) {
	t.Parallel()

	host := &echoHost{redirectTemplate: testRedirectURI + "#state={state}"}
	flow := NewFlow(host)

	_, err := flow.SignIn(context.Background(), "client-1", testRedirectURI, nil)
	if !errors.Is(err, auth.ErrMissingToken) {
		t.Fatalf("SignIn error = %v, want ErrMissingToken", err)
	}
}

func TestSignInValidationFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			"non-2xx status",
			func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "invalid access token", http.StatusUnauthorized)
			},
		},
		{
			"missing login field",
			func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"client_id":"client-1"}`))
			},
		},
		{
			"unparsable body",
			func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			validate := httptest.NewServer(tt.handler)
			defer validate.Close()

			host := &echoHost{redirectTemplate: testRedirectURI + "#access_token=abc&state={state}"}
			flow := NewFlow(host)
			flow.ValidateBaseURL = validate.URL

			_, err := flow.SignIn(context.Background(), "client-1", testRedirectURI, nil)
			if !errors.Is(err, auth.ErrTokenValidationFailed) {
				t.Fatalf("SignIn error = %v, want ErrTokenValidationFailed", err)
			}
		})
	}
}

func TestGuestUsernamePattern(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^justinfan\d{5}$`)
	for i := 0; i < 16; i++ {
		if name := GuestUsername(); !pattern.MatchString(name) {
			t.Fatalf("GuestUsername() = %q, want justinfan + 5 digits", name)
		}
	}
}
