package workers

import (
	"context"
	"fmt"
)

// Worker runs doWork for every value received on in until in is closed, then
// runs finalize. It stops early, without finalizing, on the first work error
// or when ctx is done.
func Worker[T any](ctx context.Context, in <-chan T, doWork func(T) error, finalize func() error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-in:
			if !ok {
				if finalize != nil {
					if err := finalize(); err != nil {
						return fmt.Errorf("worker finalize encountered an error: %w", err)
					}
				}
				return nil
			}
			if err := doWork(v); err != nil {
				return fmt.Errorf("worker encountered an error: %w", err)
			}
		}
	}
}
