package cli

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type ErrorHandler struct {
	InternalDebug bool
	Verbose       bool
	PostPrintHook func()
}

// PrintErr logs err, one entry per aggregated error.
func (h ErrorHandler) PrintErr(err error) {
	if err == nil {
		return
	}
	errFmt := "%v"
	if h.InternalDebug {
		errFmt = "%+v"
	}

	log := zap.S()
	errs := multierr.Errors(err)
	if len(errs) == 1 {
		log.Errorf(errFmt, errs[0])
	} else {
		log.Errorf("%d errors:", len(errs))
		for i, err := range errs {
			log.Errorf("[err %d] "+errFmt, i+1, err)
		}
	}
	if h.PostPrintHook != nil {
		h.PostPrintHook()
	}
}
