package server

import (
	"fmt"
	"net/url"
	"time"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	HTTP struct {
		Port int32
		// AllowedOrigins lists the browser origins allowed by CORS, empty allows all.
		AllowedOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Store struct {
		// Driver is memory or postgres.
		Driver string
	}

	Postgres PostgresConfig

	// Redis carries the change feed, the leaderboard throttle and player notifications.
	// Without addresses a single instance runs on the in-process feed.
	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Content struct {
		// File is a YAML catalogue. Without it content is read from Postgres.
		File string
		TTL  time.Duration
	}

	Session struct {
		MinPlayers    int
		AutoAdvance   bool
		WatchInterval time.Duration
	}

	Scoring struct {
		BasePoints int
		Floor      float64
	}

	Sync struct {
		PollInterval time.Duration
	}

	Leaderboard struct {
		PublishInterval time.Duration
	}
}

type PostgresConfig struct {
	Addr string
	User string
	Pass string
	Name string
}

func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Pass),
		Host:     c.Addr,
		Path:     c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// DefaultConfig returns the values used for keys missing from the config file.
func DefaultConfig() Config {
	var c Config

	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Store.Driver = StoreMemory
	c.Redis.Prefix = "travelquiz"
	c.Content.File = "config/content.yaml"
	c.Content.TTL = 5 * time.Minute
	c.Session.AutoAdvance = true
	c.Session.WatchInterval = 500 * time.Millisecond
	c.Scoring.BasePoints = 1000
	c.Scoring.Floor = 0.5
	c.Sync.PollInterval = 1500 * time.Millisecond
	c.Leaderboard.PublishInterval = 200 * time.Millisecond

	return c
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.Addr == "" {
			return fmt.Errorf("postgres.addr is required by the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	if c.Content.File == "" && c.Store.Driver != StorePostgres {
		return fmt.Errorf("content.file is required without the postgres store")
	}

	return nil
}
