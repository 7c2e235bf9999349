package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <slug>",
		Short: "Resolve a Kick channel slug to its chat-room id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := bootstrap()
			if err != nil {
				return err
			}
			lookup, err := svc.ResolveChatroom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("channel %s chatroom %d (%s, %d attempt(s))\n",
				lookup.Slug, lookup.ChatroomID, lookup.Strategy, lookup.Attempts)
			return nil
		},
	}
}
