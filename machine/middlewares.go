package machine

import (
	"github.com/pkg/errors"
)

// After executes afterFunc after the routine exits.
func After(afterFunc func(routine Routine, err error)) Middleware {
	return func(fn Func) Func {
		return func(routine Routine) (err error) {
			defer func() {
				afterFunc(routine, err)
			}()
			return fn(routine)
		}
	}
}

// Before executes beforeFunc before the routine runs.
func Before(beforeFunc func(routine Routine)) Middleware {
	return func(fn Func) Func {
		return func(routine Routine) error {
			beforeFunc(routine)
			return fn(routine)
		}
	}
}

// PanicRecover turns a panic inside the routine into an error.
func PanicRecover() Middleware {
	return func(fn Func) Func {
		return func(routine Routine) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if e, ok := r.(error); ok {
						err = errors.Wrapf(e, "routine %s panicked", routine.Name())
						return
					}
					err = errors.Errorf("routine %s panicked: %v", routine.Name(), r)
				}
			}()
			return fn(routine)
		}
	}
}
