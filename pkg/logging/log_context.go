package logging

import (
	"context"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/io"
	"go.uber.org/zap"
)

type contextKey string

var logKey contextKey = "log"

const stackKey = "stack"

func GetLogger(ctx context.Context) *zap.Logger {
	l := ctx.Value(logKey)
	if l == nil {
		return zap.L()
	}
	return l.(*zap.Logger)
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, logKey, logger)
}

// WithStack returns a context whose logger tags every entry with the stack being worked on.
func WithStack(ctx context.Context, stack string) context.Context {
	return WithLogger(ctx, GetLogger(ctx).With(StackField(stack)))
}

// StackField is rendered by the console encoder as a `[stack]` prefix.
func StackField(name string) zap.Field {
	return zap.String(stackKey, name)
}

func ResourceField(id construct.ResourceId) zap.Field {
	return zap.Stringer("resource", id)
}

func FileNames(files []io.File) []string {
	s := make([]string, len(files))
	for i, f := range files {
		s[i] = f.Path()
	}
	return s
}
