// Command oauth2-login performs one OAuth2 authorization code login and prints
// the resulting access and refresh tokens
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wrale/oauth2-login/internal/logger"
	"github.com/wrale/oauth2-login/internal/login"
)

// Version is set by the build process
var Version = "dev"

type runFunc func(ctx context.Context, cfg Config, out io.Writer) error

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = newRootCmd(&cfg, run).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *Config, runE runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "oauth2-login",
		Short:        "Obtain OAuth2 access and refresh tokens through a one-shot browser login",
		Version:      Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE(cmd.Context(), *cfg, cmd.OutOrStdout())
		},
	}
	cfg.bindFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg Config, out io.Writer) error {
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if _, err := login.Run(ctx, cfg.loginConfig(), out, log); err != nil {
		log.Error("login failed", zap.Error(err))
		return err
	}
	return nil
}
