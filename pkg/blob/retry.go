package blob

import (
	"context"
	"time"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// retryableError marks a transient download failure: a network error, an
// interrupted body or a 5xx/429 response.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// retry runs fn up to attempts times, doubling delay after each transient
// failure. Other errors end the loop at once. The last error is returned
// unwrapped from its retryable marker.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var last error
	for i := range max(attempts, 1) {
		err := fn()
		if err == nil {
			return nil
		}
		var re *retryableError
		if !errors.As(err, &re) {
			return err
		}
		last = re.err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
	return last
}
