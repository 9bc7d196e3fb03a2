package expreplay

import "errors"

// BufferError implements errors unique to an experience replay buffer.
type BufferError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *BufferError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *BufferError) Unwrap() error {
	return e.Err
}

var errEmptyBuffer = errors.New("buffer empty")

var errInvalidBatchSize = errors.New("batch size must be positive")

// IsEmptyBuffer returns whether or not an error reports that a replay
// buffer holds no transitions to sample from.
func IsEmptyBuffer(err error) bool {
	if bufErr, ok := err.(*BufferError); ok {
		err = bufErr.Err
	}
	return err == errEmptyBuffer
}
