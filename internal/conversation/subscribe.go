package conversation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

// Watcher is the push side of the remote message store.
// The returned channel delivers batches until ctx is done and is then closed.
type Watcher interface {
	Watch(ctx context.Context, filter schema.Filter) (<-chan schema.Batch, error)
}

// Inserter appends a record to the remote message store.
type Inserter interface {
	Insert(ctx context.Context, msg schema.Message) error
}

// Store is what a conversation needs from the remote message store.
type Store interface {
	Watcher
	Inserter
}

// Subscribe watches both directions of the conversation between local and
// remote and merges them into one stream. Batches of one watch keep their
// order; batches of different watches interleave arbitrarily. The returned
// channel is closed after ctx is done.
func Subscribe(ctx context.Context, w Watcher, local, remote string) (<-chan schema.Batch, error) {
	ctx, cancel := context.WithCancel(ctx)

	filters := schema.PairFilters(local, remote)
	inputs := make([]<-chan schema.Batch, 0, len(filters))
	for _, f := range filters {
		ch, err := w.Watch(ctx, f)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("watch %s: %w", f, err)
		}
		inputs = append(inputs, ch)
	}

	out := make(chan schema.Batch)
	var g errgroup.Group
	for _, in := range inputs {
		g.Go(func() error {
			forward(ctx, in, out)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		cancel()
		close(out)
	}()

	return out, nil
}

func forward(ctx context.Context, in <-chan schema.Batch, out chan<- schema.Batch) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}
