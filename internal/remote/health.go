package remote

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// TestConnection performs a one-row select; no error means the project is
// reachable with these credentials.
func TestConnection(ctx context.Context, c Client) error {
	_, err := c.Select(ctx, TableSettings, Filter{Limit: 1})
	return err
}

// VerifyTables selects from every required table and returns those that could not
// be selected, in RequiredTables order. The error is non-nil only when ctx ends.
func VerifyTables(ctx context.Context, c Client) ([]string, error) {
	var (
		mu     sync.Mutex
		failed = make(map[string]bool)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, table := range RequiredTables {
		g.Go(func() error {
			if _, err := c.Select(gctx, table, Filter{Limit: 1}); err != nil {
				slog.WarnContext(gctx, "Remote table check failed", "table", table, "error", err)
				mu.Lock()
				failed[table] = true
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, table := range RequiredTables {
		if failed[table] {
			missing = append(missing, table)
		}
	}
	return missing, nil
}
