package dualthread

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// ConfigureLogging installs the global apex/log handler described by LOG_FORMAT (text, json or cli) and
// LOG_LEVEL, writing to stderr. The Host logger is reset to the global logger.
func (h *Host) ConfigureLogging(ctx context.Context) error {
	return h.configureLogging(ctx, os.Stderr)
}

func (h *Host) configureLogging(ctx context.Context, w io.Writer) error {
	handler, err := logHandler(h.OptionDefault(ctx, "LOG_FORMAT", "text"), w)
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(h.OptionDefault(ctx, "LOG_LEVEL", "info"))
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	log.SetHandler(handler)
	log.SetLevel(level)
	h.logger = log.Log
	return nil
}

func logHandler(format string, w io.Writer) (log.Handler, error) {
	switch format {
	case "text":
		return text.New(w), nil
	case "json":
		return json.New(w), nil
	case "cli":
		return cli.New(w), nil
	default:
		return nil, fmt.Errorf("LOG_FORMAT: unknown format %q", format)
	}
}
