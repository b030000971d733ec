// Package syncbridge keeps client views of a room current. Changes are pushed through the store feed
// and, since the feed may drop them, the room is also polled. Both paths feed the same View.
package syncbridge

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/event"
	"github.com/victornm/travelquiz/internal/store"
	"github.com/victornm/travelquiz/internal/telemetry"
)

const (
	defaultPollInterval = 1500 * time.Millisecond

	PathInitial = "initial"
	PathPush    = "push"
	PathPoll    = "poll"
)

// concern is a reason for a client to poll, it stops polling once done reports true.
type concern struct {
	name string
	done func(domain.RoomState) bool
}

var concerns = []concern{
	{name: "lobby", done: func(s domain.RoomState) bool { return s.Status != domain.StatusLobby }},
	{name: "session", done: func(s domain.RoomState) bool { return s.Status == domain.StatusFinished }},
}

type Config struct {
	Store        store.Store
	Feed         store.Feed
	EventBus     *event.Bus
	PollInterval time.Duration
}

type Service struct {
	store    store.Store
	feed     store.Feed
	interval time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		store:    c.Store,
		feed:     c.Feed,
		interval: c.PollInterval,
	}

	if s.interval <= 0 {
		s.interval = defaultPollInterval
	}

	c.EventBus.Subscribe(s.forwardChange,
		domain.EventNamePlayerJoined,
		domain.EventNameRoomStarted,
		domain.EventNameRoundAdvanced,
		domain.EventNameAnswerRecorded,
	)

	return s
}

// forwardChange turns a domain event into feed changes for the tables it wrote.
func (s *Service) forwardChange(ctx context.Context, e event.Event) error {
	var (
		roomID string
		tables []store.Table
	)

	switch e := e.(type) {
	case domain.EventPlayerJoined:
		roomID, tables = e.Player.RoomID, []store.Table{store.TablePlayers}
	case domain.EventRoomStarted:
		roomID, tables = e.Room.ID, []store.Table{store.TableRooms, store.TablePlayers}
	case domain.EventRoundAdvanced:
		roomID, tables = e.Room.ID, []store.Table{store.TableRooms, store.TablePlayers}
	case domain.EventAnswerRecorded:
		roomID, tables = e.Answer.RoomID, []store.Table{store.TablePlayers}
	default:
		return nil
	}

	now := time.Now()
	for _, t := range tables {
		if err := s.feed.Publish(ctx, store.Change{RoomID: roomID, Table: t, At: now}); err != nil {
			return fmt.Errorf("publish change: %w", err)
		}
	}

	return nil
}

// Watch keeps a view of the room current and calls onChange, never concurrently, with every snapshot
// that changed it. It returns nil once the room finished or ctx is done.
func (s *Service) Watch(ctx context.Context, roomID string, onChange func(Snapshot) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		v  = NewView()
		mu sync.Mutex
	)

	refresh := func(ctx context.Context, path string) error {
		snap, err := s.fetch(ctx, roomID)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()

		changed := v.Apply(snap)
		telemetry.SyncApplied(path, changed)

		if changed {
			if err := onChange(v.Snapshot()); err != nil {
				return sinkError{err}
			}
		}

		if st, _ := v.State(); st.Status == domain.StatusFinished {
			cancel()
		}

		return nil
	}

	// Subscribe before the first fetch so no change falls between them.
	changes, unsubscribe, err := s.feed.Subscribe(ctx, roomID)
	if err != nil {
		slog.WarnContext(ctx, "syncbridge: subscribe failed, polling only", "room", roomID, "error", err)
		changes = nil
	} else {
		defer unsubscribe()
	}

	if err := refresh(ctx, PathInitial); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return push(ctx, changes, refresh)
	})

	for _, c := range concerns {
		eg.Go(func() error {
			return s.poll(ctx, v, c, refresh)
		})
	}

	err = eg.Wait()
	if stderrors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// push refreshes on every change. A nil changes channel waits for ctx only.
func push(ctx context.Context, changes <-chan store.Change, refresh func(context.Context, string) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}

			if err := refresh(ctx, PathPush); err != nil && !transient(ctx, err) {
				return err
			}
		}
	}
}

func (s *Service) poll(ctx context.Context, v *View, c concern, refresh func(context.Context, string) error) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if st, ok := v.State(); ok && c.done(st) {
			slog.DebugContext(ctx, "syncbridge: polling stopped", "concern", c.name, "status", st.Status)
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := refresh(ctx, PathPoll); err != nil && !transient(ctx, err) {
				return err
			}
		}
	}
}

// fetch reads the room before its players, so the players are never older than the room.
func (s *Service) fetch(ctx context.Context, roomID string) (Snapshot, error) {
	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return Snapshot{}, err
	}

	players, err := s.store.ListPlayers(ctx, roomID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list players: %w", err)
	}

	return Snapshot{Room: r, Players: players}, nil
}

// sinkError is a failure of the onChange callback, it ends the watch.
type sinkError struct {
	error
}

func (e sinkError) Unwrap() error {
	return e.error
}

// transient reports whether a refresh failure should be left to the next attempt.
func transient(ctx context.Context, err error) bool {
	var se sinkError
	if stderrors.As(err, &se) || stderrors.Is(err, domain.ErrRoomNotFound) {
		return false
	}

	if ctx.Err() == nil {
		slog.WarnContext(ctx, "syncbridge: refresh failed", "error", err)
	}

	return true
}
