// Package main is the overchat command line. It drives provider sign-in and
// sign-out, channel resolution, and live chat tailing on top of the shared
// service layer.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/overchat-app/overchat/internal/config"
	"github.com/overchat-app/overchat/internal/credstore"
	"github.com/overchat-app/overchat/internal/logging"
	"github.com/overchat-app/overchat/internal/popup"
	"github.com/overchat-app/overchat/internal/service"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var configPath string

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "overchat",
		Short:         "Sign in to Twitch and Kick and tail their chats",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadDotEnv()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "configuration file path (default ~/.overchat/config.yaml)")

	root.AddCommand(newLoginCommand())
	root.AddCommand(newLogoutCommand())
	root.AddCommand(newResolveCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// loadDotEnv loads .env from the working directory when present. Missing files
// are the normal case and stay silent.
func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}
}

// bootstrap loads configuration, sets up logging, and builds the service with
// the loopback callback host. Every subcommand starts here.
func bootstrap() (*config.Config, *service.Service, error) {
	path := configPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		path = filepath.Join(home, ".overchat", "config.yaml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	logging.Setup(cfg.Debug)
	if cfg.LoggingToFile {
		logging.RedirectToFile(cfg.LogDir)
	}

	store := credstore.NewStore(cfg.CredentialFile)
	host := &popup.LoopbackHost{Port: cfg.CallbackPort}
	// The command line has no script-capable page surface, so the resolver
	// runs without its anti-bot fallback here.
	svc := service.New(cfg, store, host, nil)
	return cfg, svc, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("overchat %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}
