package llm

import (
	"context"
	"errors"
	"io"
)

// accumulate drains deltas from next into out, sending the answer so far
// after each one. next returns io.EOF when the backend finishes; any other
// error terminates the stream with a final "Error: <message>" element so a
// mid-answer transport failure is never mistaken for completion. out is
// closed before returning.
func accumulate(ctx context.Context, out chan<- string, next func() (string, error)) {
	defer close(out)

	var acc string
	for {
		delta, err := next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			select {
			case out <- "Error: " + err.Error():
			case <-ctx.Done():
			}
			return
		}
		acc += delta
		select {
		case out <- acc:
		case <-ctx.Done():
			return
		}
	}
}
