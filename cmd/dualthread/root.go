package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/betafish-inc/dualthread"
)

var rootCmd = &cobra.Command{
	Use:   "dualthread",
	Short: "dualthread runs a page and a background worker that only talk through messages",
	Long: `dualthread runs a page and a background worker in separate contexts. The page asks the worker to
update its text and logs every text the worker sends back. Both contexts can share one process or run as
separate processes connected through NATS, Redis or nsq.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// hostFlags maps persistent flags to the Host options they override.
var hostFlags = map[string]string{
	"transport":  "TRANSPORT",
	"session":    "SESSION",
	"log-level":  "LOG_LEVEL",
	"log-format": "LOG_FORMAT",
}

func init() {
	// Persistent flags (available to all commands). Unset flags leave the environment in charge.
	addHostFlags(rootCmd.PersistentFlags())
}

func addHostFlags(fs *pflag.FlagSet) {
	fs.String("transport", "memory", "Message transport: memory, nats, redis or nsq (Env: TRANSPORT)")
	fs.String("session", "default", "Session name shared by the page and the worker (Env: SESSION)")
	fs.String("log-level", "info", "Log level: debug, info, warn, error (Env: LOG_LEVEL)")
	fs.String("log-format", "text", "Log format: text, json or cli (Env: LOG_FORMAT)")
}

// newHost creates a Host configured from the command line and the environment.
func newHost(cmd *cobra.Command) (*dualthread.Host, error) {
	h := dualthread.NewHost()
	for flag, key := range hostFlags {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		val, err := cmd.Flags().GetString(flag)
		if err != nil {
			return nil, err
		}
		h.Set(key, val)
	}
	if err := h.ConfigureLogging(cmd.Context()); err != nil {
		return nil, err
	}
	return h, nil
}

// ensureSession gives a single process run over a broker its own session so that concurrent runs do not
// read each other's messages.
func ensureSession(ctx context.Context, h *dualthread.Host) {
	if h.OptionDefault(ctx, "TRANSPORT", "memory") == "memory" {
		return
	}
	if val, _ := h.Option(ctx, "SESSION"); val != "" {
		return
	}
	session := uuid.NewString()
	h.Set("SESSION", session)
	h.Logger().WithField("session", session).Info("generated session")
}
