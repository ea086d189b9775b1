package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// EntryLeveller is a zapcore.Core that filters entries by the level configured for their logger name. A logger
// named `stacks.service` uses the level of `stacks.service`, then `stacks`, then the empty name, falling back to
// the wrapped core's level.
type EntryLeveller struct {
	zapcore.Core

	levels map[string]zapcore.Level
}

func NewEntryLeveller(core zapcore.Core, levels map[string]zapcore.Level) *EntryLeveller {
	copied := make(map[string]zapcore.Level, len(levels))
	for k, v := range levels {
		copied[k] = v
	}
	return &EntryLeveller{Core: core, levels: copied}
}

func (el *EntryLeveller) With(fields []zapcore.Field) zapcore.Core {
	return &EntryLeveller{Core: el.Core.With(fields), levels: el.levels}
}

// levelFor returns the configured level of the closest named ancestor of name.
func (el *EntryLeveller) levelFor(name string) (zapcore.Level, bool) {
	for {
		if lvl, ok := el.levels[name]; ok {
			return lvl, true
		}
		if name == "" {
			return 0, false
		}
		idx := strings.LastIndexByte(name, '.')
		if idx < 0 {
			name = ""
		} else {
			name = name[:idx]
		}
	}
}

func (el *EntryLeveller) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	lvl, ok := el.levelFor(e.LoggerName)
	if !ok {
		return el.Core.Check(e, ce)
	}
	if e.Level < lvl {
		return ce
	}
	return ce.AddCore(e, el)
}
