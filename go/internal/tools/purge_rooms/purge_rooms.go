package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/turingroom/go/internal/dbconfig"
)

// Deletes room history older than the retention window. Players, rounds and votes
// go with their room through ON DELETE CASCADE.
func main() {
	retention := flag.Duration("retention", 7*24*time.Hour, "keep finished rooms for this long")
	abandoned := flag.Duration("abandoned", 48*time.Hour, "delete unfinished rooms created longer ago than this")
	dryRun := flag.Bool("dry-run", false, "count matching rooms without deleting them")
	flag.Parse()

	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	now := time.Now().UTC()
	finishedBefore := now.Add(-*retention)
	createdBefore := now.Add(-*abandoned)

	const match = `
        FROM rooms
        WHERE (finished_at IS NOT NULL AND finished_at < $1)
           OR (finished_at IS NULL AND created_at < $2)`

	if *dryRun {
		var n int64
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) `+match, finishedBefore, createdBefore).Scan(&n); err != nil {
			fmt.Fprintf(os.Stderr, "count rooms: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d rooms would be purged (finished before %s, or unfinished and created before %s)\n",
			n, finishedBefore.Format(time.RFC3339), createdBefore.Format(time.RFC3339))
		return
	}

	cmdTag, err := pool.Exec(ctx, `DELETE `+match, finishedBefore, createdBefore)
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge rooms: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Purged %d rooms (finished before %s, or unfinished and created before %s)\n",
		cmdTag.RowsAffected(), finishedBefore.Format(time.RFC3339), createdBefore.Format(time.RFC3339))
}
