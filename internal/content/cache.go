package content

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/victornm/travelquiz/internal/domain"
)

const topicsKey = "topics"

// Cache keeps content in memory for a TTL so rounds don't hit the backing store on every answer.
// Concurrent misses for the same key are collapsed into one load.
type Cache struct {
	next  Repository
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu      sync.Mutex
	rnd     *rand.Rand
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

func NewCache(next Repository, ttl time.Duration) *Cache {
	return &Cache{
		next:    next,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	v, err := c.get(ctx, topicsKey, func(ctx context.Context) (any, error) {
		return c.next.ListTopics(ctx)
	})
	if err != nil {
		return nil, err
	}

	return v.([]domain.Topic), nil
}

func (c *Cache) Subtopic(ctx context.Context, id int64) (domain.Subtopic, error) {
	v, err := c.get(ctx, "subtopic:"+strconv.FormatInt(id, 10), func(ctx context.Context) (any, error) {
		return c.next.Subtopic(ctx, id)
	})
	if err != nil {
		return domain.Subtopic{}, err
	}

	return v.(domain.Subtopic), nil
}

func (c *Cache) Questions(ctx context.Context, subtopicID int64) ([]domain.Question, error) {
	v, err := c.get(ctx, "questions:"+strconv.FormatInt(subtopicID, 10), func(ctx context.Context) (any, error) {
		return c.next.Questions(ctx, subtopicID)
	})
	if err != nil {
		return nil, err
	}

	return v.([]domain.Question), nil
}

func (c *Cache) get(ctx context.Context, key string, load func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		v, err := load(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = cacheEntry{value: v, expiresAt: c.clock().Add(c.ttlWithJitter())}
		c.mu.Unlock()

		return v, nil
	})

	return v, err
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.expiresAt.After(c.clock()) {
		return nil, false
	}

	return e.value, true
}

// ttlWithJitter adds up to 10% to the ttl to spread expirations. Callers hold c.mu.
func (c *Cache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}

	return c.ttl + time.Duration(c.rnd.Int63n(int64(c.ttl)/10+1))
}
