// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/KyungWonPark/Connectome/internal/config"
)

// New returns a slog logger writing to w with the configured level and format.
func New(w io.Writer, cfg config.Logging) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, fmt.Errorf("%w: logging.level %q", config.ErrInvalid, cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch cfg.Format {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("%w: logging.format %q", config.ErrInvalid, cfg.Format)
	}

	return slog.New(h), nil
}
