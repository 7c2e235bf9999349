// Package resolve turns a human-entered channel name into the numeric
// chat-room id required to subscribe to the channel's live chat. Lookup runs
// through a direct HTTP strategy first and, when the provider's anti-bot
// wall answers with a 403, retries inside a hidden browsing surface whose
// page-context requests carry the page's own session state.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Terminal resolution failures.
var (
	// ErrEmptySlug is returned when the channel name is empty after
	// normalization.
	ErrEmptySlug = errors.New("channel name is empty")

	// ErrChatroomNotFound is returned when the channel payload was fetched
	// but carries no chat-room id anywhere.
	ErrChatroomNotFound = errors.New("channel payload carries no chatroom id")
)

// LookupError reports a lookup that failed at the transport level.
type LookupError struct {
	// Message is the provider's message field when present, else a generic
	// description including the HTTP status.
	Message string
	// Status is the last HTTP status observed, 0 when the request never
	// produced a response.
	Status int
}

func (e *LookupError) Error() string { return e.Message }

// newLookupError prefers the provider's own message over the generic one.
func newLookupError(payload gjson.Result, status int) *LookupError {
	message := payload.Get("message").Str
	if message == "" {
		message = fmt.Sprintf("channel lookup failed with status %d", status)
	}
	return &LookupError{Message: message, Status: status}
}

// Lookup is the outcome of one resolution call.
type Lookup struct {
	// Slug is the normalized channel name that was resolved.
	Slug string
	// ChatroomID is the provider-internal chat-room identifier.
	ChatroomID int64
	// Strategy names the strategy that produced the result, "direct" or
	// "browser".
	Strategy string
	// Attempts counts HTTP attempts across both strategies.
	Attempts int
	// LastStatus is the HTTP status of the final attempt.
	LastStatus int
}

// strategyResult is what either strategy hands back: the transport-level
// outcome, successful or not.
type strategyResult struct {
	status   int
	payload  gjson.Result
	attempts int
}

// ok reports whether the strategy got a 2xx response.
func (r *strategyResult) ok() bool { return r.status >= 200 && r.status <= 299 }

// Resolver resolves channel slugs to chat-room ids.
type Resolver struct {
	// Direct is the primary strategy.
	Direct *DirectStrategy
	// Browser is the anti-bot fallback. Nil when the configured surface
	// host cannot run page scripts; 403 walls then surface as lookup
	// failures.
	Browser *BrowserStrategy
}

// ResolveChatroom resolves slug to its chat-room id. The browser fallback
// runs only when the direct strategy hit exactly a 403; any other failure
// status is terminal immediately.
func (r *Resolver) ResolveChatroom(ctx context.Context, slug string) (*Lookup, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, ErrEmptySlug
	}

	result, err := r.Direct.Lookup(ctx, slug)
	if err != nil {
		return nil, &LookupError{Message: fmt.Sprintf("channel lookup failed: %v", err)}
	}

	strategy := "direct"
	attempts := result.attempts

	if id, found := extractChatroomID(result.payload); found && result.ok() {
		return &Lookup{Slug: slug, ChatroomID: id, Strategy: strategy, Attempts: attempts, LastStatus: result.status}, nil
	}

	if result.status == 403 && r.Browser != nil {
		log.Infof("resolve: direct lookup for %s blocked with 403, retrying in browser surface", slug)
		browserResult, errBrowser := r.Browser.Lookup(ctx, slug)
		if errBrowser != nil {
			return nil, &LookupError{Message: fmt.Sprintf("channel lookup failed: %v", errBrowser), Status: result.status}
		}
		strategy = "browser"
		attempts += browserResult.attempts
		result = browserResult
	}

	if !result.ok() {
		return nil, newLookupError(result.payload, result.status)
	}
	id, found := extractChatroomID(result.payload)
	if !found {
		return nil, ErrChatroomNotFound
	}
	return &Lookup{Slug: slug, ChatroomID: id, Strategy: strategy, Attempts: attempts, LastStatus: result.status}, nil
}

// extractChatroomID walks a channel payload for the chat-room id. The search
// order is fixed: a numeric chatroom.id, then a numeric chatroom_id, then
// recursion into each element of a data array, then recursion into a data
// object. First match wins.
func extractChatroomID(payload gjson.Result) (int64, bool) {
	if id := payload.Get("chatroom.id"); id.Type == gjson.Number {
		return id.Int(), true
	}
	if id := payload.Get("chatroom_id"); id.Type == gjson.Number {
		return id.Int(), true
	}
	data := payload.Get("data")
	if data.IsArray() {
		for _, element := range data.Array() {
			if id, found := extractChatroomID(element); found {
				return id, true
			}
		}
		return 0, false
	}
	if data.IsObject() {
		return extractChatroomID(data)
	}
	return 0, false
}
