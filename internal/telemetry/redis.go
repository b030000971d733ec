package telemetry

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

var redisCommands = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "redis_command_duration_seconds",
	Help:      "Redis command latency by command and result.",
	Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
}, []string{"cmd", "result"})

// MonitorRedis instruments r with tracing and metrics, and logs its commands at debug level.
func MonitorRedis(r redis.UniversalClient) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisHook{})
	return nil
}

type redisHook struct{}

func (redisHook) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			slog.WarnContext(ctx, "redis: dial failed", "addr", addr, "error", err)
			return nil, err
		}

		slog.DebugContext(ctx, "redis: dialed", "network", network, "addr", addr)
		return conn, nil
	}
}

func (redisHook) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmd)
		observeRedis(ctx, cmd.Name(), start, err)
		return err
	}
}

func (redisHook) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmds)
		observeRedis(ctx, "pipeline", start, err)
		return err
	}
}

func observeRedis(ctx context.Context, name string, start time.Time, err error) {
	elapsed := time.Since(start)

	// redis.Nil is a miss, not a failure.
	failed := err != nil && !stderrors.Is(err, redis.Nil)
	redisCommands.WithLabelValues(name, result(!failed, "ok", "error")).Observe(elapsed.Seconds())

	if failed {
		slog.WarnContext(ctx, "redis: command failed", "cmd", name, "elapsed", elapsed, "error", err)
		return
	}
	slog.DebugContext(ctx, "redis: command processed", "cmd", name, "elapsed", elapsed)
}
