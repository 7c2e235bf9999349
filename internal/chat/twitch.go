package chat

import (
	"context"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	log "github.com/sirupsen/logrus"
)

// TwitchReader tails a Twitch channel's chat over IRC. Guest identities use
// Twitch's anonymous justinfan login, which can read chat without a token.
type TwitchReader struct {
	// Username is the signed-in login or a justinfan guest name.
	Username string
	// AccessToken is empty for guests.
	AccessToken string
	// Channel is the channel to join.
	Channel string
	// OnMessage receives each chat line.
	OnMessage Handler
}

// Run connects and reads until ctx is cancelled. It returns the connect
// error, or nil after a cancellation-triggered disconnect.
func (r *TwitchReader) Run(ctx context.Context) error {
	var client *twitchirc.Client
	if r.AccessToken == "" {
		client = twitchirc.NewAnonymousClient()
	} else {
		client = twitchirc.NewClient(r.Username, "oauth:"+r.AccessToken)
	}

	client.OnPrivateMessage(func(msg twitchirc.PrivateMessage) {
		if r.OnMessage == nil {
			return
		}
		r.OnMessage(Message{
			Platform: "twitch",
			Channel:  r.Channel,
			Sender:   msg.User.DisplayName,
			Text:     msg.Message,
			Time:     time.Now().UTC(),
		})
	})

	// The disconnect goroutine must not outlive Run when Connect fails on
	// its own; stop releases it on every return path.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			if err := client.Disconnect(); err != nil {
				log.Debugf("chat: twitch disconnect: %v", err)
			}
		case <-stop:
		}
	}()

	client.Join(r.Channel)
	log.Infof("chat: joined twitch channel %s", r.Channel)
	if err := client.Connect(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
