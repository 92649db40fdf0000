package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// TruncateForTest empties the postgres tables between subtests.
func TruncateForTest(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, `TRUNCATE results, targets RESTART IDENTITY`)
	return err
}
