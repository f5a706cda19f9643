package strategy

import (
	"context"
	"sync"
)

// background tracks detached tasks: cache writes and revalidation fetches
// that outlive the request that started them. Production code never waits
// for them; Wait exists so tests can observe their effects
// deterministically.
type background struct {
	wg sync.WaitGroup
}

// Go runs fn on a context that keeps ctx's values but not its
// cancellation, so a finished request does not abort its write.
func (b *background) Go(ctx context.Context, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(detached)
	}()
}

// Wait blocks until every task started so far has finished or ctx ends.
func (b *background) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
