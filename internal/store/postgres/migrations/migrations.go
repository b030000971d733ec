// Package migrations holds the schema of the content and session tables.
package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var (
	//go:embed 0001_create_content.sql
	createContentSQL string

	//go:embed 0002_create_rooms.sql
	createRoomsSQL string
)

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.Add(migrate.Migration{
		Name: "20240701000001",
		Up:   func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createContentSQL)
			return err
		},
		Down: func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS choices, questions, subtopics, topics`)
			return err
		},
	})

	Migrations.Add(migrate.Migration{
		Name: "20240701000002",
		Up:   func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createRoomsSQL)
			return err
		},
		Down: func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS answers, players, rooms`)
			return err
		},
	})
}
