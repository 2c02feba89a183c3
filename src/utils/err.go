package utils

import (
	"errors"
	"fmt"
)

// HandlePanic must be deferred directly. It turns a recovered panic into an
// error and hands it to fns.
func HandlePanic(fns ...func(err error)) {
	if pa := recover(); pa != nil {
		var err error
		switch v := pa.(type) {
		case error:
			err = v
		case string:
			err = errors.New(v)
		default:
			err = fmt.Errorf("%v", v)
		}
		for _, fn := range fns {
			fn(err)
		}
	}
}
