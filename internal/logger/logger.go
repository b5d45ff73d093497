// Package logger builds the zerolog logger and the slog bridge used by the
// pipeline packages.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config covers output shape only. Run and component fields travel in the
// context so each key is written once.
type Config struct {
	Level   string
	Console bool
	SampleN int
}

type ctxKey string

const (
	ctxReqIDKey  ctxKey = "request_id"
	ctxRunID     ctxKey = "run_id"
	ctxOrderDate ctxKey = "order_date"
	ctxComponent ctxKey = "component"
)

var ctxFields = []ctxKey{ctxRunID, ctxReqIDKey, ctxComponent, ctxOrderDate}

func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return context.WithValue(ctx, ctxReqIDKey, reqID)
}

// WithRunID tags everything logged under ctx with one pipeline run.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		runID = NewID()
	}
	return context.WithValue(ctx, ctxRunID, runID)
}

func RunID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRunID).(string)
	return s
}

func WithOrderDate(ctx context.Context, date string) context.Context {
	if date == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxOrderDate, date)
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxComponent, component)
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func safeUint32(n int) uint32 {
	if n <= 0 {
		return 0
	}
	if n > int(math.MaxUint32) {
		return math.MaxUint32
	}
	return uint32(n)
}

func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	base := zerolog.New(out)

	if cfg.SampleN > 0 {
		n := safeUint32(cfg.SampleN)
		if n > 0 {
			base = base.Sample(&zerolog.BasicSampler{N: n})
		}
	}

	lvl := strings.ToLower(strings.TrimSpace(cfg.Level))
	switch lvl {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return base.With().Timestamp().Logger()
}

// returns a child logger with context fields applied
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	var base zerolog.Logger
	if parent == nil {
		base = zerolog.New(io.Discard)
	} else {
		base = *parent
	}
	w := base.With()
	for _, k := range ctxFields {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			w = w.Str(string(k), s)
		}
	}
	l := w.Logger()
	return &l
}
