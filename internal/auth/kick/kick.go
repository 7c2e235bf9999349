// Package kick implements the Kick sign-in flow using the OAuth authorization
// code grant with PKCE. The authorization code arrives in the redirect query
// string and is exchanged at the token endpoint together with the PKCE
// verifier; the user profile is then fetched for a display name.
package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/overchat-app/overchat/internal/auth"
	"github.com/overchat-app/overchat/internal/popup"
)

// Default Kick identity endpoints.
const (
	AuthURL    = "https://id.kick.com/oauth/authorize"
	TokenURL   = "https://id.kick.com/oauth/token"
	ProfileURL = "https://api.kick.com/public/v1/users"
)

// Flow drives a complete Kick sign-in attempt.
type Flow struct {
	// Host opens the interactive surface the user authorizes in.
	Host popup.Host
	// HTTPClient performs the token exchange and profile requests. Kick
	// fronts its endpoints with TLS fingerprinting, so production callers
	// pass the browser-fingerprint client.
	HTTPClient *http.Client
	// Endpoint overrides, primarily for tests.
	AuthBaseURL    string
	TokenBaseURL   string
	ProfileBaseURL string
}

// NewFlow returns a flow against the production Kick endpoints using the
// given HTTP client.
func NewFlow(host popup.Host, client *http.Client) *Flow {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Flow{
		Host:           host,
		HTTPClient:     client,
		AuthBaseURL:    AuthURL,
		TokenBaseURL:   TokenURL,
		ProfileBaseURL: ProfileURL,
	}
}

// tokenResponse is the token endpoint's payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// SignIn runs the PKCE flow and returns the resulting token set.
//
// With client id or secret missing the flow short-circuits to a guest token
// set without touching the network. Otherwise it generates a state nonce and
// PKCE pair, captures the redirect through a popup session, verifies state,
// exchanges the code, and fetches the profile for a username. A profile
// without any usable name field still signs in, with a blank display name.
func (f *Flow) SignIn(ctx context.Context, clientID, clientSecret, redirectURI string, scopes []string) (*auth.TokenSet, error) {
	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	if clientID == "" || clientSecret == "" {
		log.Info("kick: client credentials not configured, continuing as guest")
		return &auth.TokenSet{Username: "guest", IsGuest: true}, nil
	}

	state, err := auth.GenerateState()
	if err != nil {
		return nil, err
	}
	pkceCodes, err := GeneratePKCECodes()
	if err != nil {
		return nil, err
	}

	authorizeURL := f.buildAuthorizeURL(clientID, redirectURI, scopes, state, pkceCodes)
	redirect, err := popup.NewSession(f.Host).Run(ctx, authorizeURL, redirectURI)
	if err != nil {
		return nil, err
	}

	params, err := auth.ParseCallback(redirect)
	if err != nil {
		return nil, err
	}
	if params.Error != "" {
		return nil, auth.NewProviderError(params.ErrorDescription)
	}
	if params.State != state {
		return nil, auth.ErrStateMismatch
	}
	if params.Code == "" {
		return nil, auth.ErrMissingCode
	}

	tokens, err := f.exchangeCode(ctx, clientID, clientSecret, redirectURI, params.Code, pkceCodes.CodeVerifier)
	if err != nil {
		return nil, err
	}

	username := f.fetchUsername(ctx, tokens.AccessToken)
	if username != "" {
		log.Infof("kick: signed in as %s", username)
	} else {
		log.Info("kick: signed in, profile carries no display name")
	}

	return &auth.TokenSet{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Username:     username,
	}, nil
}

// buildAuthorizeURL assembles the code-grant authorize URL with the PKCE
// challenge attached.
func (f *Flow) buildAuthorizeURL(clientID, redirectURI string, scopes []string, state string, pkceCodes *PKCECodes) string {
	params := url.Values{
		"client_id":             {clientID},
		"redirect_uri":          {redirectURI},
		"response_type":         {"code"},
		"scope":                 {strings.Join(scopes, " ")},
		"state":                 {state},
		"code_challenge":        {pkceCodes.CodeChallenge},
		"code_challenge_method": {"S256"},
	}
	return fmt.Sprintf("%s?%s", f.AuthBaseURL, params.Encode())
}

// exchangeCode trades the authorization code for tokens via a form-encoded
// POST carrying the PKCE verifier.
func (f *Flow) exchangeCode(ctx context.Context, clientID, clientSecret, redirectURI, code, codeVerifier string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("redirect_uri", redirectURI)
	form.Set("grant_type", "authorization_code")
	form.Set("code_verifier", codeVerifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.TokenBaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrTokenExchangeFailed, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("failed to close response body: %v", errClose)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", auth.ErrTokenExchangeFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tokens tokenResponse
	if err = json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("%w: unparsable response", auth.ErrTokenExchangeFailed)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carries no access token", auth.ErrTokenExchangeFailed)
	}
	return &tokens, nil
}

// fetchUsername retrieves the authenticated profile and probes it for a
// display name. Failures are logged and reported as an empty name; sign-in
// does not depend on the profile endpoint.
func (f *Flow) fetchUsername(ctx context.Context, accessToken string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ProfileBaseURL, nil)
	if err != nil {
		log.Warnf("kick: failed to create profile request: %v", err)
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		log.Warnf("kick: profile request failed: %v", err)
		return ""
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warnf("kick: profile fetch returned status %d", resp.StatusCode)
		return ""
	}
	return extractUsername(gjson.ParseBytes(body))
}

// extractUsername probes, in order, a username, name, or slug field on the
// payload itself or on the first element of a data array underneath it.
func extractUsername(payload gjson.Result) string {
	first := payload.Get("data.0")
	for _, field := range []string{"username", "name", "slug"} {
		if v := payload.Get(field); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
		if v := first.Get(field); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
