package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_validate(t *testing.T) {
	tests := map[string]struct {
		arrange func(c *Config)
		wantErr bool
	}{
		"should accept the defaults": {
			arrange: func(c *Config) {},
		},

		"should require a postgres address for the postgres store": {
			arrange: func(c *Config) { c.Store.Driver = StorePostgres },
			wantErr: true,
		},

		"should read content from postgres without a file": {
			arrange: func(c *Config) {
				c.Store.Driver = StorePostgres
				c.Postgres.Addr = "localhost:5432"
				c.Content.File = ""
			},
		},

		"should require a content file for the memory store": {
			arrange: func(c *Config) { c.Content.File = "" },
			wantErr: true,
		},

		"should reject an unknown driver": {
			arrange: func(c *Config) { c.Store.Driver = "sqlite" },
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			tt.arrange(&c)

			err := c.validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	c := PostgresConfig{Addr: "db:5432", User: "quiz", Pass: "p@ss", Name: "travelquiz"}
	require.Equal(t, "postgres://quiz:p%40ss@db:5432/travelquiz?sslmode=disable", c.DSN())
}
