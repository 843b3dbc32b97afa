package safe

import (
	"RoomChat/logger"
	"RoomChat/tools/errs"

	"go.uber.org/zap"
)

// Go starts f in a new goroutine that recovers from panic, so that one
// connection cannot crash the entire program.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("[safe.Go] panic recovered", zap.String("goroutine", name), zap.Error(errs.ErrPanic(r)))
			}
		}()
		f()
	}()
}

// Call runs f and turns a panic into an error.
func Call(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
		}
	}()
	return f()
}
