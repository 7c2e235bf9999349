// Package twitch implements the Twitch sign-in flow. Twitch hands tokens out
// through the OAuth implicit grant: the access token arrives directly in the
// redirect fragment and is then validated against the token-introspection
// endpoint before it is trusted.
package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/overchat-app/overchat/internal/auth"
	"github.com/overchat-app/overchat/internal/popup"
)

// Default Twitch identity endpoints.
const (
	AuthURL     = "https://id.twitch.tv/oauth2/authorize"
	ValidateURL = "https://id.twitch.tv/oauth2/validate"
)

// guestPrefix matches Twitch's anonymous-login convention: justinfan
// nicknames can join chat read-only without any token.
const guestPrefix = "justinfan"

// Flow drives a complete Twitch sign-in attempt.
type Flow struct {
	// Host opens the interactive surface the user authorizes in.
	Host popup.Host
	// HTTPClient performs the introspection request. Defaults to a client
	// with a sane timeout.
	HTTPClient *http.Client
	// AuthBaseURL and ValidateBaseURL override the Twitch endpoints,
	// primarily for tests.
	AuthBaseURL     string
	ValidateBaseURL string
}

// NewFlow returns a flow against the production Twitch endpoints.
func NewFlow(host popup.Host) *Flow {
	return &Flow{
		Host:            host,
		HTTPClient:      &http.Client{Timeout: 30 * time.Second},
		AuthBaseURL:     AuthURL,
		ValidateBaseURL: ValidateURL,
	}
}

// validateResponse is the introspection endpoint's payload. Only the login
// name matters here.
type validateResponse struct {
	Login string `json:"login"`
}

// SignIn runs the implicit-grant flow and returns the resulting token set.
//
// With no client id configured the flow short-circuits to a guest identity
// with a generated justinfan nickname; that is a legitimate terminal state,
// not an error, and no network request is made. Otherwise the user authorizes
// in a popup session, the redirect fragment is checked against the request's
// state nonce, and the token is validated against the introspection endpoint
// before the token set is returned.
func (f *Flow) SignIn(ctx context.Context, clientID, redirectURI string, scopes []string) (*auth.TokenSet, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		username := GuestUsername()
		log.Infof("twitch: no client id configured, continuing as guest %s", username)
		return &auth.TokenSet{Username: username, IsGuest: true}, nil
	}

	state, err := auth.GenerateState()
	if err != nil {
		return nil, err
	}

	authorizeURL := f.buildAuthorizeURL(clientID, redirectURI, scopes, state)
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
	if params.AccessToken == "" {
		return nil, auth.ErrMissingToken
	}

	login, err := f.validateToken(ctx, params.AccessToken)
	if err != nil {
		return nil, err
	}

	log.Infof("twitch: signed in as %s", login)
	return &auth.TokenSet{AccessToken: params.AccessToken, Username: login}, nil
}

// buildAuthorizeURL assembles the implicit-grant authorize URL. force_verify
// makes Twitch re-prompt for consent so switching accounts stays possible.
func (f *Flow) buildAuthorizeURL(clientID, redirectURI string, scopes []string, state string) string {
	params := url.Values{
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"token"},
		"scope":         {strings.Join(scopes, " ")},
		"state":         {state},
		"force_verify":  {"true"},
	}
	return fmt.Sprintf("%s?%s", f.AuthBaseURL, params.Encode())
}

// validateToken introspects the access token and returns the account's login
// name. A non-2xx response or a payload without a login fails validation.
func (f *Flow) validateToken(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ValidateBaseURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create validation request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", auth.ErrTokenValidationFailed, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("failed to close response body: %v", errClose)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read validation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", auth.ErrTokenValidationFailed, resp.StatusCode)
	}

	var validated validateResponse
	if err = json.Unmarshal(body, &validated); err != nil {
		return "", fmt.Errorf("%w: unparsable response", auth.ErrTokenValidationFailed)
	}
	if validated.Login == "" {
		return "", fmt.Errorf("%w: response carries no login", auth.ErrTokenValidationFailed)
	}
	return validated.Login, nil
}

// GuestUsername generates a justinfan pseudo-username with a 5-digit suffix.
func GuestUsername() string {
	return fmt.Sprintf("%s%d", guestPrefix, 10000+mathrand.Intn(90000))
}
