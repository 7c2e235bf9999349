package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/overchat-app/overchat/internal/service"
)

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "login <twitch|kick>",
		Short:     "Sign in to a provider",
		Long:      "Sign in to a provider. Providers without client credentials configured sign in as a read-only guest without opening a browser.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{service.ProviderTwitch, service.ProviderKick},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := bootstrap()
			if err != nil {
				return err
			}
			tokens, err := svc.SignIn(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s sign-in failed: %w", args[0], err)
			}
			if tokens.IsGuest {
				fmt.Printf("signed in to %s as guest %q\n", args[0], tokens.Username)
				return nil
			}
			fmt.Printf("signed in to %s as %q\n", args[0], tokens.Username)
			return nil
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "logout <twitch|kick>",
		Short:     "Sign out of a provider and clear its stored credentials",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{service.ProviderTwitch, service.ProviderKick},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := bootstrap()
			if err != nil {
				return err
			}
			if err = svc.SignOut(args[0]); err != nil {
				return err
			}
			fmt.Printf("signed out of %s\n", args[0])
			return nil
		},
	}
}
