package counter

import (
	"errors"
	"fmt"
)

var (
	// ErrUsage means no video was given.
	ErrUsage = errors.New("usage: pushupcount <video path or URL>")
	// ErrProcessing wraps every failure while loading, decoding or inferring.
	ErrProcessing = errors.New("processing failed")
)

func processing(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrProcessing, stage, err)
}

// Result is either a count or the reason none could be produced.
type Result struct {
	Count int
	Err   error
}

func Success(count int) Result {
	return Result{Count: count}
}

func Failure(reason error) Result {
	return Result{Err: reason}
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Output is the number printed for this result: the count, or 0 on failure.
func (r Result) Output() int {
	if !r.OK() {
		return 0
	}
	return r.Count
}

// ExitCode is 0 for a success (including a count of zero) and 1 otherwise.
func (r Result) ExitCode() int {
	if !r.OK() {
		return 1
	}
	return 0
}
