package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// Output formats accepted by Setup.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = NewSlogProvider(os.Stderr, LevelInfo)
)

// GetLogger returns a logger from the installed provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns a logger tagged with ComponentKey=name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// SetProvider installs p and returns a function restoring the previous provider.
func SetProvider(p LoggerProvider) (restore func()) {
	providerMu.Lock()
	prev := provider
	provider = p
	providerMu.Unlock()
	return func() {
		providerMu.Lock()
		provider = prev
		providerMu.Unlock()
	}
}

// Setup installs the process-wide provider for level and format, writing to
// stderr. Library warnings raised through errors.Warn are routed to it.
func Setup(level, format string) error {
	return SetupWriter(os.Stderr, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "", FormatJSON:
		p := NewSlogProvider(w, lvl)
		SetProvider(p)
		slog.SetDefault(p.base)
		warnings := p.GetLoggerWithName("warnings")
		errors.SetZerologWarnFunc(nil)
		errors.SetWarningHandler(func(warning error) {
			warnings.Warn(warning.Error(), ErrorTypeKey, fmt.Sprintf("%T", warning))
		})
	case FormatConsole:
		p := NewZerologProvider(w, lvl)
		SetProvider(p)
		errors.SetZerologWarnFunc(p.warn)
	default:
		return errors.NewValidationError("log.format", "must be json or console", format)
	}
	return nil
}

// ParseLevel converts a configuration string to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("log.level", "must be one of debug, info, warn, error", level)
	}
}

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// splitErr separates a leading error from the key-value fields.
func splitErr(fields []any) (error, []any) {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			return err, fields[1:]
		}
	}
	return nil, fields
}

// --- slog backend ---

// SlogProvider emits JSON records through log/slog.
type SlogProvider struct {
	level *slog.LevelVar
	base  *slog.Logger
}

// NewSlogProvider creates a JSON provider writing to w.
func NewSlogProvider(w io.Writer, level Level) *SlogProvider {
	lv := &slog.LevelVar{}
	lv.Set(slog.Level(level))
	ops := slog.HandlerOptions{
		Level: lv,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr.Key = "severity"
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	}
	handler := WrapByErrFmtHandler(slog.NewJSONHandler(w, &ops))
	return &SlogProvider{level: lv, base: slog.New(handler)}
}

func (p *SlogProvider) GetLogger() Logger { return &slogLogger{l: p.base} }

func (p *SlogProvider) GetLoggerWithName(name string) Logger {
	return &slogLogger{l: p.base.With(ComponentKey, name)}
}

func (p *SlogProvider) SetLevel(level Level) { p.level.Set(slog.Level(level)) }

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, fields...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.l.Info(msg, fields...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.l.Warn(msg, fields...) }

func (s *slogLogger) Error(msg string, fields ...any) {
	err, rest := splitErr(fields)
	if err != nil {
		rest = append([]any{ErrAttr(err)}, rest...)
	}
	s.l.Error(msg, rest...)
}

func (s *slogLogger) With(fields ...any) Logger { return &slogLogger{l: s.l.With(fields...)} }

func (s *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.l.Enabled(ctx, slog.Level(level))
}

// --- zerolog backend ---

// ZerologProvider emits human-readable records through zerolog's console writer.
type ZerologProvider struct {
	mu   sync.RWMutex
	base zerolog.Logger
}

// NewZerologProvider creates a console provider writing to w.
func NewZerologProvider(w io.Writer, level Level) *ZerologProvider {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: true}
	return &ZerologProvider{
		base: zerolog.New(out).Level(toZerologLevel(level)).With().Timestamp().Logger(),
	}
}

func (p *ZerologProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{l: p.base}
}

func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{l: p.base.With().Str(ComponentKey, name).Logger()}
}

func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.base.Level(toZerologLevel(level))
}

// warn logs library warnings, expanding their structured payload.
func (p *ZerologProvider) warn(w error) {
	p.mu.RLock()
	l := p.base
	p.mu.RUnlock()
	ev := l.Warn().Str(ComponentKey, "warnings")
	if obj, ok := w.(zerolog.LogObjectMarshaler); ok {
		ev = ev.Object("warning", obj)
	}
	ev.Msg(w.Error())
}

type zerologLogger struct {
	l zerolog.Logger
}

func (z *zerologLogger) Debug(msg string, fields ...any) { z.l.Debug().Fields(fields).Msg(msg) }
func (z *zerologLogger) Info(msg string, fields ...any)  { z.l.Info().Fields(fields).Msg(msg) }
func (z *zerologLogger) Warn(msg string, fields ...any)  { z.l.Warn().Fields(fields).Msg(msg) }

func (z *zerologLogger) Error(msg string, fields ...any) {
	err, rest := splitErr(fields)
	ev := z.l.Error()
	if err != nil {
		ev = ev.Err(err)
		if st := extractStacktrace(err); st != "" {
			ev = ev.Str(StacktraceAttrKey, st)
		}
	}
	ev.Fields(rest).Msg(msg)
}

func (z *zerologLogger) With(fields ...any) Logger {
	return &zerologLogger{l: z.l.With().Fields(fields).Logger()}
}

func (z *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return z.l.GetLevel() <= toZerologLevel(level)
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
