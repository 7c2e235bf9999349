// Package chat reads live chat from both platforms once a channel has been
// resolved, and writes transcripts to rotated log files. Twitch chat arrives
// over IRC; Kick chat is a websocket subscription against the chat-room id
// the resolver produced.
package chat

import "time"

// Message is one chat line, platform-independent.
type Message struct {
	// Platform is "twitch" or "kick".
	Platform string
	// Channel is the channel the message was read from.
	Channel string
	// Sender is the author's display name.
	Sender string
	// Text is the message body.
	Text string
	// Time is when the message was received.
	Time time.Time
}

// Handler receives each message as it arrives.
type Handler func(Message)
