package memory

import (
	"context"
	"sync"

	"github.com/victornm/travelquiz/internal/store"
)

const subscriberBuffer = 16

var _ store.Feed = (*Feed)(nil)

// Feed fans changes out to in-process subscribers. A subscriber that falls behind loses its
// oldest pending change rather than blocking publishers.
type Feed struct {
	mu   sync.Mutex
	subs map[string]map[chan store.Change]struct{}
}

func NewFeed() *Feed {
	return &Feed{
		subs: make(map[string]map[chan store.Change]struct{}),
	}
}

func (f *Feed) Publish(_ context.Context, c store.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for ch := range f.subs[c.RoomID] {
		select {
		case ch <- c:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- c
		}
	}

	return nil
}

func (f *Feed) Subscribe(ctx context.Context, roomID string) (<-chan store.Change, func(), error) {
	ch := make(chan store.Change, subscriberBuffer)

	f.mu.Lock()
	if f.subs[roomID] == nil {
		f.subs[roomID] = make(map[chan store.Change]struct{})
	}
	f.subs[roomID][ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()

			delete(f.subs[roomID], ch)
			if len(f.subs[roomID]) == 0 {
				delete(f.subs, roomID)
			}
			close(ch)
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel, nil
}
