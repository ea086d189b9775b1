package closenicely

import (
	"io"

	"go.uber.org/zap"
)

// OrDebug closes closer, logging a failure at debug level. Use it where the close cannot affect the result, such as
// after reading.
func OrDebug(closer io.Closer, fields ...zap.Field) {
	FuncOrDebug(closer.Close, fields...)
}

func FuncOrDebug(closer func() error, fields ...zap.Field) {
	if err := closer(); err != nil {
		zap.L().Debug("could not close resource", append(fields, zap.Error(err))...)
	}
}
