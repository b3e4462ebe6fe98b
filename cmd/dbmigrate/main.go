package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/willemschots/mailverify/internal"
	"github.com/willemschots/mailverify/internal/db"
	"github.com/willemschots/mailverify/internal/db/migrate"
	"github.com/willemschots/mailverify/migrations"
)

const helpText = `Usage: dbmigrate [sqlite_file]`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, helpText)
		return 1
	}

	dbFile := args[0]

	sqlDB, err := db.OpenSQLite(dbFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return 1
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*60)
	defer cancel()

	ran, err := migrate.RunFS(ctx, sqlDB, migrations.FS, migrate.Metadata{
		AppVersion: internal.Build.Revision,
		Timestamp:  internal.Build.RevisionTime,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		return 1
	}

	for _, migration := range ran {
		fmt.Printf("%d: %s\n", migration.Version, migration.Filename)
	}

	return 0
}
