package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/overchat-app/overchat/internal/chat"
	"github.com/overchat-app/overchat/internal/credstore"
	"github.com/overchat-app/overchat/internal/service"
	"github.com/overchat-app/overchat/internal/watcher"
)

func newChatCommand() *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "chat <channel>",
		Short: "Tail a channel's live chat to the terminal and a transcript file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, svc, err := bootstrap()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			// The session also ends when the platform's stored identity
			// changes under it.
			ctx, endSession := context.WithCancel(ctx)
			defer endSession()

			record, err := svc.Store().Load()
			if err != nil {
				return err
			}

			channel := args[0]
			transcript := chat.NewLog(cfg.ChatLogDir, platform, channel)
			defer func() {
				_ = transcript.Close()
			}()

			onMessage := func(msg chat.Message) {
				transcript.Record(msg)
				fmt.Printf("[%s] %s: %s\n", msg.Time.Format("15:04:05"), msg.Sender, msg.Text)
			}

			switch platform {
			case service.ProviderKick:
				go watchIdentity(ctx, svc.Store(), platform, record.KickUsername, endSession)
				return runKickChat(ctx, svc, channel, onMessage)
			case service.ProviderTwitch:
				go watchIdentity(ctx, svc.Store(), platform, record.TwitchUsername, endSession)
				return runTwitchChat(ctx, record, channel, onMessage)
			default:
				return fmt.Errorf("unknown platform %q", platform)
			}
		},
	}
	cmd.Flags().StringVar(&platform, "platform", service.ProviderKick, "chat platform (twitch or kick)")
	return cmd
}

// watchIdentity follows the credential file and ends the chat session when the
// platform's signed-in username changes, so sign-out or a re-sign-in under a
// different account does not leave a session running on the old identity.
func watchIdentity(ctx context.Context, store *credstore.Store, platform, username string, endSession context.CancelFunc) {
	err := watcher.Watch(ctx, store, func(record *credstore.Record) {
		current := record.TwitchUsername
		if platform == service.ProviderKick {
			current = record.KickUsername
		}
		if current != username {
			log.Infof("%s credentials changed, ending chat session", platform)
			endSession()
		}
	})
	if err != nil && ctx.Err() == nil {
		log.Warnf("credential watcher stopped: %v", err)
	}
}

func runKickChat(ctx context.Context, svc *service.Service, channel string, onMessage chat.Handler) error {
	lookup, err := svc.ResolveChatroom(ctx, channel)
	if err != nil {
		return err
	}
	log.Infof("tailing kick channel %s (chatroom %d)", lookup.Slug, lookup.ChatroomID)

	reader := &chat.KickReader{
		ChatroomID: lookup.ChatroomID,
		Channel:    lookup.Slug,
		OnMessage:  onMessage,
	}
	return reader.Run(ctx)
}

func runTwitchChat(ctx context.Context, record *credstore.Record, channel string, onMessage chat.Handler) error {
	if record.TwitchUsername == "" {
		return fmt.Errorf("not signed in to twitch; run \"overchat login twitch\" first")
	}
	log.Infof("tailing twitch channel %s as %s", channel, record.TwitchUsername)

	reader := &chat.TwitchReader{
		Username:    record.TwitchUsername,
		AccessToken: record.TwitchAccessToken,
		Channel:     channel,
		OnMessage:   onMessage,
	}
	return reader.Run(ctx)
}
