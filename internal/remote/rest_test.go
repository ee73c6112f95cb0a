package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

var testKey = strings.Repeat("k", 64)

type recorded struct {
	method string
	path   string
	query  string
	prefer string
	apikey string
	auth   string
	body   string
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			prefer: r.Header.Get("Prefer"),
			apikey: r.Header.Get("apikey"),
			auth:   r.Header.Get("Authorization"),
			body:   string(body),
		})
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestRESTClientUpsert(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusCreated, "")
	c := NewRESTClient(core.RemoteCredentials{URL: srv.URL + "/", Key: testKey}, 0)

	row := NewTransactionRow("inst-1", core.Transaction{
		ID: "t1", Amount: decimal.NewFromInt(100), Date: core.NewDate(2024, 1, 1),
		Category: "expense-food", Kind: core.Expense,
	})
	if err := c.Upsert(context.Background(), TableTransactions, []Row{row}, ConflictID); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if len(*calls) != 1 {
		t.Fatalf("expected one request, got %d", len(*calls))
	}
	got := (*calls)[0]
	if got.method != http.MethodPost || got.path != "/rest/v1/transactions" || got.query != "on_conflict=id" {
		t.Fatalf("unexpected request %+v", got)
	}
	if !strings.Contains(got.prefer, "resolution=merge-duplicates") {
		t.Fatalf("missing merge preference: %q", got.prefer)
	}
	if got.apikey != testKey || got.auth != "Bearer "+testKey {
		t.Fatal("auth headers not set")
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(got.body), &rows); err != nil || len(rows) != 1 || rows[0]["installation_id"] != "inst-1" {
		t.Fatalf("unexpected body %s (err=%v)", got.body, err)
	}
}

func TestRESTClientUpsertEmptyIsNoop(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusCreated, "")
	c := NewRESTClient(core.RemoteCredentials{URL: srv.URL, Key: testKey}, 0)
	if err := c.Upsert(context.Background(), TableBudgets, nil, ConflictID); err != nil {
		t.Fatal(err)
	}
	if len(*calls) != 0 {
		t.Fatal("empty upsert should not hit the network")
	}
}

func TestRESTClientSelectBuildsFilter(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `[{"id":"c1"},{"id":"c2"}]`)
	c := NewRESTClient(core.RemoteCredentials{URL: srv.URL, Key: testKey}, 0)

	f := ByInstallation("inst-1")
	f.Limit = 5
	rows, err := c.Select(context.Background(), TableCategories, f)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if q := (*calls)[0].query; q != "installation_id=eq.inst-1&limit=5&select=%2A" {
		t.Fatalf("unexpected query %q", q)
	}
}

func TestRESTClientDelete(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusNoContent, "")
	c := NewRESTClient(core.RemoteCredentials{URL: srv.URL, Key: testKey}, 0)
	if err := c.Delete(context.Background(), TableBudgets, "b1"); err != nil {
		t.Fatal(err)
	}
	got := (*calls)[0]
	if got.method != http.MethodDelete || got.query != "id=eq.b1" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestRESTClientErrorsAreConnectivity(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusNotFound, `{"code":"42P01","message":"relation does not exist"}`)
	c := NewRESTClient(core.RemoteCredentials{URL: srv.URL, Key: testKey}, 0)

	_, err := c.Select(context.Background(), TableBudgets, Filter{Limit: 1})
	var cerr *core.ConnectivityError
	if !errors.As(err, &cerr) || cerr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 connectivity error, got %v", err)
	}

	dead := NewRESTClient(core.RemoteCredentials{URL: "http://127.0.0.1:1", Key: testKey}, 0)
	if err := dead.Delete(context.Background(), TableBudgets, "b1"); !core.IsConnectivity(err) {
		t.Fatalf("expected transport connectivity error, got %v", err)
	}
}

func TestRESTClientTimeoutAndCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	slow := NewRESTClient(core.RemoteCredentials{URL: srv.URL, Key: testKey}, 50*time.Millisecond)
	_, err := slow.Select(context.Background(), TableSettings, Filter{Limit: 1})
	var cerr *core.ConnectivityError
	if !errors.As(err, &cerr) || cerr.StatusCode != 0 {
		t.Fatalf("expected transport connectivity error on timeout, got %v", err)
	}

	c := NewRESTClient(core.RemoteCredentials{URL: srv.URL, Key: testKey}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	if err := c.Delete(ctx, TableBudgets, "b1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRESTClientErrorWithoutJSONBodyKeepsStatus(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusBadGateway, "upstream down")
	c := NewRESTClient(core.RemoteCredentials{URL: srv.URL, Key: testKey}, 0)

	err := c.Upsert(context.Background(), TableBudgets, []Row{NewBudgetRow("inst-1", core.Budget{ID: "b1"})}, ConflictID)
	var cerr *core.ConnectivityError
	if !errors.As(err, &cerr) || cerr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 connectivity error, got %v", err)
	}
}
