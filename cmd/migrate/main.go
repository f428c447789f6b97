package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"PerpVault/internal/observability"
	"PerpVault/internal/persistence"
	"PerpVault/migrations"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dsn string
	var db *sql.DB

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply or roll back the PerpVault Postgres schema",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if db, err = sql.Open("postgres", dsn); err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			return db.PingContext(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return db.Close()
		},
	}
	def := os.Getenv("PERP_POSTGRES_DSN")
	if def == "" {
		def = "postgres://localhost:5432/perpvault?sslmode=disable"
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", def, "Postgres connection string (env PERP_POSTGRES_DSN)")

	migrator := func() *persistence.Migrator {
		return persistence.NewMigrator(db, migrations.FS, observability.NewLogger("migrate"))
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				n, err := migrator().Up(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Printf("applied %d migration(s)\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last applied migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := migrator().Down(cmd.Context()); err != nil {
					return err
				}
				cmd.Println("rolled back one migration")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			RunE: func(cmd *cobra.Command, _ []string) error {
				statuses, err := migrator().Status(cmd.Context())
				if err != nil {
					return err
				}
				for _, s := range statuses {
					mark := "pending"
					if s.Applied {
						mark = "applied"
					}
					cmd.Printf("%-8s %s\n", mark, s.Filename)
				}
				return nil
			},
		},
	)
	return root
}
