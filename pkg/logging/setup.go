package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

type LogOpts struct {
	Verbose bool
	// Color is one of auto, always/on or never/off.
	Color string
	// Encoding is console (the default) or json.
	Encoding      string
	DefaultLevels map[string]zapcore.Level

	HadWarnings *atomic.Bool
	HadErrors   *atomic.Bool
}

func (opts LogOpts) useColor() bool {
	switch opts.Color {
	case "always", "on":
		return true
	case "never", "off":
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (opts LogOpts) Encoder() zapcore.Encoder {
	switch opts.Encoding {
	case "json":
		cfg := zap.NewProductionEncoderConfig()
		if opts.Verbose {
			cfg = zap.NewDevelopmentEncoderConfig()
			cfg.EncodeTime = TimeOffsetFormatter(time.Now())
		}
		return zapcore.NewJSONEncoder(cfg)

	case "console", "":
		color.NoColor = !opts.useColor()
		hadWarnings, hadErrors := opts.HadWarnings, opts.HadErrors
		if hadWarnings == nil {
			hadWarnings = atomic.NewBool(false)
		}
		if hadErrors == nil {
			hadErrors = atomic.NewBool(false)
		}
		return NewConsoleEncoder(opts.Verbose, hadWarnings, hadErrors)
	}
	panic(fmt.Errorf("unknown encoding %q", opts.Encoding))
}

// Levels returns the per-logger levels: LOG_LEVEL (`name=level,...`) when set, otherwise DefaultLevels.
func (opts LogOpts) Levels() map[string]zapcore.Level {
	env, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return opts.DefaultLevels
	}
	levels := make(map[string]zapcore.Level)
	for _, entry := range strings.Split(env, ",") {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		lvl, err := zapcore.ParseLevel(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		levels[strings.TrimSpace(name)] = lvl
	}
	return levels
}

func (opts LogOpts) NewCore(w zapcore.WriteSyncer) zapcore.Core {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if opts.Verbose {
		level.SetLevel(zap.DebugLevel)
	}
	core := zapcore.NewCore(opts.Encoder(), w, level)
	if levels := opts.Levels(); len(levels) > 0 {
		core = NewEntryLeveller(core, levels)
	}
	return core
}

func (opts LogOpts) NewLogger() *zap.Logger {
	return zap.New(opts.NewCore(os.Stderr))
}

// TimeOffsetFormatter encodes times as the duration since start, which reads better than wall clock times for a
// short-lived command.
func TimeOffsetFormatter(start time.Time) zapcore.TimeEncoder {
	return func(t time.Time, e zapcore.PrimitiveArrayEncoder) {
		diff := t.Sub(start)
		switch {
		case diff < time.Second:
			e.AppendString(fmt.Sprintf("%4dms", diff.Milliseconds()))
		case diff < 5*time.Minute:
			e.AppendString(fmt.Sprintf("%5.1fs", diff.Seconds()))
		default:
			e.AppendString(fmt.Sprintf("%5.1fm", diff.Minutes()))
		}
	}
}
