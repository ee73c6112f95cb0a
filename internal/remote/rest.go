package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"fintrack/internal/core"
)

// DefaultTimeout bounds a single request when no client timeout is given.
const DefaultTimeout = 15 * time.Second

// RESTClient talks to the PostgREST API served by hosted projects under
// /rest/v1.
type RESTClient struct {
	baseURL   string
	key       string
	timeout   time.Duration
	transport http.RoundTripper
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient builds a client for creds. Credentials are assumed validated.
func NewRESTClient(creds core.RemoteCredentials, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RESTClient{
		baseURL:   strings.TrimRight(strings.TrimSpace(creds.URL), "/") + "/rest/v1",
		key:       strings.TrimSpace(creds.Key),
		timeout:   timeout,
		transport: http.DefaultTransport,
	}
}

// Upsert inserts rows, merging with existing rows that share conflictKey.
func (c *RESTClient) Upsert(ctx context.Context, table string, rows []Row, conflictKey string) error {
	if len(rows) == 0 {
		return nil
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal %s rows: %w", table, err)
	}

	_, err = c.call(ctx, "upsert "+table, func(pg *postgrest.Client) ([]byte, error) {
		data, _, err := pg.From(table).
			Upsert(json.RawMessage(body), conflictKey, "minimal", "").
			Execute()
		return data, err
	})
	return err
}

// Select returns the raw rows matching filter.
func (c *RESTClient) Select(ctx context.Context, table string, filter Filter) ([]json.RawMessage, error) {
	body, err := c.call(ctx, "select "+table, func(pg *postgrest.Client) ([]byte, error) {
		q := pg.From(table).Select("*", "", false)
		cols := make([]string, 0, len(filter.Eq))
		for col := range filter.Eq {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			q = q.Eq(col, filter.Eq[col])
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit, "")
		}
		data, _, err := q.Execute()
		return data, err
	})
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &core.ParseError{Source: "select " + table, Err: err}
	}
	return rows, nil
}

// Delete removes the row with the given id. Deleting a missing row succeeds.
func (c *RESTClient) Delete(ctx context.Context, table string, id string) error {
	_, err := c.call(ctx, "delete "+table, func(pg *postgrest.Client) ([]byte, error) {
		data, _, err := pg.From(table).
			Delete("minimal", "").
			Eq(ConflictID, id).
			Execute()
		return data, err
	})
	return err
}

// call runs one request through a postgrest client bound to ctx and maps
// failures to ConnectivityError, keeping the HTTP status when there was one.
func (c *RESTClient) call(ctx context.Context, op string, run func(*postgrest.Client) ([]byte, error)) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pg := postgrest.NewClient(c.baseURL, "", map[string]string{
		"apikey":        c.key,
		"Authorization": "Bearer " + c.key,
	})
	if pg.ClientError != nil {
		return nil, &core.ConfigurationError{Field: "url", Reason: pg.ClientError.Error()}
	}
	x := &exchange{ctx: reqCtx, base: c.transport}
	pg.Transport.Parent = x

	body, err := run(pg)
	if err == nil {
		return body, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, &core.ConnectivityError{Op: op, StatusCode: x.status, Err: err}
}

// exchange carries a call's context into postgrest-go, which builds its
// requests without one, and records the response status.
type exchange struct {
	ctx    context.Context
	base   http.RoundTripper
	status int
}

func (x *exchange) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := x.base.RoundTrip(req.WithContext(x.ctx))
	if resp != nil {
		x.status = resp.StatusCode
	}
	return resp, err
}
