// Package service is the caller-facing surface of the core: sign-in,
// sign-out, and channel resolution. It owns the wiring between flows, the
// credential store, and the resolver, and guards against concurrent sign-in
// attempts for the same provider.
package service

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/overchat-app/overchat/internal/auth"
	"github.com/overchat-app/overchat/internal/auth/kick"
	"github.com/overchat-app/overchat/internal/auth/twitch"
	"github.com/overchat-app/overchat/internal/config"
	"github.com/overchat-app/overchat/internal/credstore"
	"github.com/overchat-app/overchat/internal/popup"
	"github.com/overchat-app/overchat/internal/resolve"
	"github.com/overchat-app/overchat/internal/transport"
)

// Provider identifiers accepted by SignIn and SignOut.
const (
	ProviderTwitch = "twitch"
	ProviderKick   = "kick"
)

// Service wires the sign-in flows, credential store, and channel resolver
// behind the three caller-facing operations.
type Service struct {
	cfg      *config.Config
	store    *credstore.Store
	twitch   *twitch.Flow
	kick     *kick.Flow
	resolver *resolve.Resolver

	// mu guards inFlight. A second sign-in for a provider whose popup is
	// still open is rejected rather than queued or raced.
	mu       sync.Mutex
	inFlight map[string]bool
}

// New builds a service. host opens the visible OAuth popups; scriptHost, when
// non-nil, is a host whose hidden surfaces can run page scripts and enables
// the resolver's anti-bot fallback.
func New(cfg *config.Config, store *credstore.Store, host, scriptHost popup.Host) *Service {
	// Kick sits behind TLS fingerprinting; all Kick traffic, including the
	// public channel endpoint, rides the browser-fingerprint client.
	browserClient := transport.NewBrowserClient(cfg.ProxyURL)

	resolver := &resolve.Resolver{Direct: resolve.NewDirectStrategy(browserClient)}
	if scriptHost != nil {
		resolver.Browser = resolve.NewBrowserStrategy(scriptHost)
	}

	return &Service{
		cfg:      cfg,
		store:    store,
		twitch:   twitch.NewFlow(host),
		kick:     kick.NewFlow(host, browserClient),
		resolver: resolver,
		inFlight: make(map[string]bool),
	}
}

// newWithFlows is the test seam: it skips production transport construction.
func newWithFlows(cfg *config.Config, store *credstore.Store, twitchFlow *twitch.Flow, kickFlow *kick.Flow, resolver *resolve.Resolver) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		twitch:   twitchFlow,
		kick:     kickFlow,
		resolver: resolver,
		inFlight: make(map[string]bool),
	}
}

// SignIn runs the provider's sign-in flow and, only after the flow fully
// succeeds, writes the resulting token set into the credential store in one
// write. A failed flow leaves prior credentials untouched.
func (s *Service) SignIn(ctx context.Context, provider string) (*auth.TokenSet, error) {
	if err := s.begin(provider); err != nil {
		return nil, err
	}
	defer s.end(provider)

	var tokens *auth.TokenSet
	var err error
	switch provider {
	case ProviderTwitch:
		tokens, err = s.twitch.SignIn(ctx, s.cfg.Twitch.ClientID, s.cfg.Twitch.RedirectURI, s.cfg.Twitch.Scopes)
	case ProviderKick:
		tokens, err = s.kick.SignIn(ctx, s.cfg.Kick.ClientID, s.cfg.Kick.ClientSecret, s.cfg.Kick.RedirectURI, s.cfg.Kick.Scopes)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if err != nil {
		return nil, err
	}

	if _, err = s.store.Set(providerRecord(provider, tokens)); err != nil {
		return nil, fmt.Errorf("failed to persist credentials: %w", err)
	}
	return tokens, nil
}

// SignOut clears every credential field of the provider.
func (s *Service) SignOut(provider string) error {
	switch provider {
	case ProviderTwitch, ProviderKick:
	default:
		return fmt.Errorf("unknown provider %q", provider)
	}
	if _, err := s.store.Set(providerRecord(provider, &auth.TokenSet{})); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	log.Infof("signed out of %s", provider)
	return nil
}

// ResolveChatroom resolves a channel slug to its chat-room id.
func (s *Service) ResolveChatroom(ctx context.Context, slug string) (*resolve.Lookup, error) {
	return s.resolver.ResolveChatroom(ctx, slug)
}

// Store exposes the credential store for collaborators (chat readers, the
// credential watcher).
func (s *Service) Store() *credstore.Store { return s.store }

func (s *Service) begin(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[provider] {
		return fmt.Errorf("a %s sign-in is already in progress", provider)
	}
	s.inFlight[provider] = true
	return nil
}

func (s *Service) end(provider string) {
	s.mu.Lock()
	delete(s.inFlight, provider)
	s.mu.Unlock()
}

// providerRecord maps a token set onto the provider's credential fields. A
// zero token set clears them, which is exactly what sign-out needs.
func providerRecord(provider string, tokens *auth.TokenSet) map[string]any {
	switch provider {
	case ProviderTwitch:
		return map[string]any{
			"twitch_access_token": tokens.AccessToken,
			"twitch_username":     tokens.Username,
			"twitch_is_guest":     tokens.IsGuest,
		}
	case ProviderKick:
		return map[string]any{
			"kick_access_token":  tokens.AccessToken,
			"kick_refresh_token": tokens.RefreshToken,
			"kick_username":      tokens.Username,
			"kick_is_guest":      tokens.IsGuest,
		}
	}
	return nil
}
