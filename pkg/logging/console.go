package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/atomic"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var (
	pool = buffer.NewPool()

	levelColours = map[zapcore.Level]*color.Color{
		zapcore.DebugLevel:  color.New(color.FgMagenta),
		zapcore.InfoLevel:   color.New(color.FgHiGreen),
		zapcore.WarnLevel:   color.New(color.FgHiYellow, color.Bold),
		zapcore.ErrorLevel:  color.New(color.FgHiRed, color.Bold),
		zapcore.DPanicLevel: color.New(color.FgHiRed, color.Bold),
		zapcore.PanicLevel:  color.New(color.FgHiRed, color.Bold),
		zapcore.FatalLevel:  color.New(color.FgHiRed, color.Bold),
	}

	stackColour = color.New(color.FgHiCyan)
)

// ConsoleEncoder writes one human readable line per entry: `[stack] message  {fields}`, followed by any error
// indented below it. In verbose mode the line is prefixed by the level and errors include their stack trace.
type ConsoleEncoder struct {
	Verbose     bool
	HadWarnings *atomic.Bool
	HadErrors   *atomic.Bool

	stack string
	// fields encodes the context fields, without the entry's time, level or message.
	fields zapcore.Encoder
}

func NewConsoleEncoder(verbose bool, hadWarnings *atomic.Bool, hadErrors *atomic.Bool) *ConsoleEncoder {
	return &ConsoleEncoder{
		Verbose:     verbose,
		HadWarnings: hadWarnings,
		HadErrors:   hadErrors,
		fields: zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeDuration: zapcore.StringDurationEncoder,
		}),
	}
}

func (enc *ConsoleEncoder) Clone() zapcore.Encoder {
	return &ConsoleEncoder{
		Verbose:     enc.Verbose,
		HadWarnings: enc.HadWarnings,
		HadErrors:   enc.HadErrors,
		stack:       enc.stack,
		fields:      enc.fields.Clone(),
	}
}

func (enc *ConsoleEncoder) AddString(key, value string) {
	if key == stackKey {
		enc.stack = value
		return
	}
	enc.fields.AddString(key, value)
}

func (enc *ConsoleEncoder) EncodeEntry(ent zapcore.Entry, fieldList []zapcore.Field) (*buffer.Buffer, error) {
	if ent.Level >= zapcore.WarnLevel {
		enc.HadWarnings.Store(true)
	}
	if ent.Level >= zapcore.ErrorLevel {
		enc.HadErrors.Store(true)
	}

	stack := enc.stack
	var errs []error
	rest := make([]zapcore.Field, 0, len(fieldList))
	for _, f := range fieldList {
		switch {
		case f.Key == stackKey && f.Type == zapcore.StringType:
			stack = f.String
		case f.Type == zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok {
				errs = append(errs, err)
			}
		default:
			rest = append(rest, f)
		}
	}

	colour := levelColours[ent.Level]
	if colour == nil {
		colour = levelColours[zapcore.PanicLevel]
	}

	line := pool.Get()
	indent := ""
	if enc.Verbose {
		colour.Fprintf(line, "%-5s ", ent.Level.String())
		indent = strings.Repeat(" ", 6)
	}
	if stack != "" {
		stackColour.Fprintf(line, "[%s] ", stack)
	}
	colour.Fprint(line, ent.Message)

	fields, err := enc.fields.EncodeEntry(zapcore.Entry{}, rest)
	if err != nil {
		line.Free()
		return nil, err
	}
	if text := strings.TrimSpace(fields.String()); text != "" {
		line.AppendString("  ")
		line.AppendString(text)
	}
	fields.Free()
	line.AppendByte('\n')

	errFmt := "%v"
	if enc.Verbose {
		errFmt = "%+v"
	}
	for _, err := range errs {
		text := fmt.Sprintf("ERROR: "+errFmt, err)
		for _, errLine := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
			line.AppendString(indent)
			colour.Fprintf(line, "| %s", errLine)
			line.AppendByte('\n')
		}
	}
	return line, nil
}

// The remaining methods forward to the field encoder, so fields added through [zap.Logger.With] are kept.

func (enc *ConsoleEncoder) AddArray(key string, marshaler zapcore.ArrayMarshaler) error {
	return enc.fields.AddArray(key, marshaler)
}

func (enc *ConsoleEncoder) AddObject(key string, marshaler zapcore.ObjectMarshaler) error {
	return enc.fields.AddObject(key, marshaler)
}

func (enc *ConsoleEncoder) AddBinary(key string, value []byte)          { enc.fields.AddBinary(key, value) }
func (enc *ConsoleEncoder) AddByteString(key string, value []byte)      { enc.fields.AddByteString(key, value) }
func (enc *ConsoleEncoder) AddBool(key string, value bool)              { enc.fields.AddBool(key, value) }
func (enc *ConsoleEncoder) AddComplex128(key string, value complex128)  { enc.fields.AddComplex128(key, value) }
func (enc *ConsoleEncoder) AddComplex64(key string, value complex64)    { enc.fields.AddComplex64(key, value) }
func (enc *ConsoleEncoder) AddDuration(key string, value time.Duration) { enc.fields.AddDuration(key, value) }
func (enc *ConsoleEncoder) AddFloat64(key string, value float64)        { enc.fields.AddFloat64(key, value) }
func (enc *ConsoleEncoder) AddFloat32(key string, value float32)        { enc.fields.AddFloat32(key, value) }
func (enc *ConsoleEncoder) AddInt(key string, value int)                { enc.fields.AddInt(key, value) }
func (enc *ConsoleEncoder) AddInt64(key string, value int64)            { enc.fields.AddInt64(key, value) }
func (enc *ConsoleEncoder) AddInt32(key string, value int32)            { enc.fields.AddInt32(key, value) }
func (enc *ConsoleEncoder) AddInt16(key string, value int16)            { enc.fields.AddInt16(key, value) }
func (enc *ConsoleEncoder) AddInt8(key string, value int8)              { enc.fields.AddInt8(key, value) }
func (enc *ConsoleEncoder) AddTime(key string, value time.Time)         { enc.fields.AddTime(key, value) }
func (enc *ConsoleEncoder) AddUint(key string, value uint)              { enc.fields.AddUint(key, value) }
func (enc *ConsoleEncoder) AddUint64(key string, value uint64)          { enc.fields.AddUint64(key, value) }
func (enc *ConsoleEncoder) AddUint32(key string, value uint32)          { enc.fields.AddUint32(key, value) }
func (enc *ConsoleEncoder) AddUint16(key string, value uint16)          { enc.fields.AddUint16(key, value) }
func (enc *ConsoleEncoder) AddUint8(key string, value uint8)            { enc.fields.AddUint8(key, value) }
func (enc *ConsoleEncoder) AddUintptr(key string, value uintptr)        { enc.fields.AddUintptr(key, value) }
func (enc *ConsoleEncoder) AddReflected(key string, value interface{}) error {
	return enc.fields.AddReflected(key, value)
}
func (enc *ConsoleEncoder) OpenNamespace(key string) { enc.fields.OpenNamespace(key) }
