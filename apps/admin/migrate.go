package main

import (
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/trezcool/examoffice/storage/database"
)

var runMigrationsFunc = database.RunMigrations // mockable

func (cli *commandLine) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, up-by-one, up-to, down, down-to, redo, reset, status, version)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.invoke(func(db *sqlx.DB) error {
				return runMigrationsFunc(db.DB, args[0], args[1:]...)
			})
		},
	}
}
