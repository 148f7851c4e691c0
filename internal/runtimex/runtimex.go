// Package runtimex contains [runtime] extensions.
package runtimex

// PanicIfFalse calls panic with the given message if the given statement is false.
func PanicIfFalse(stmt bool, message interface{}) {
	if !stmt {
		panic(message)
	}
}

// PanicIfTrue calls panic with the given message if the given statement is true.
func PanicIfTrue(stmt bool, message interface{}) {
	if stmt {
		panic(message)
	}
}

// Assert calls panic with the given message if the given statement is false.
var Assert = PanicIfFalse

// PanicOnError calls panic if the given error is not nil. The value passed
// to panic wraps the original error together with the message.
func PanicOnError(err error, message string) {
	if err != nil {
		panic(&wrappedError{message: message, err: err})
	}
}

// wrappedError is the error passed to panic by [PanicOnError].
type wrappedError struct {
	message string
	err     error
}

func (e *wrappedError) Error() string {
	return e.message + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
