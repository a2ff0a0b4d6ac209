package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/config"
	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/database"
	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/logging"
)

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Host: "127.0.0.1",
		Port: 0,
		Timeouts: config.APITimeoutConfig{
			Read:  5,
			Write: 5,
			Idle:  5,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://console.local"}},
	}
}

// testServer creates a Server over a real per-operation database in a temp dir.
func testServer(t *testing.T) (*Server, *database.DB) {
	t.Helper()
	return testServerConfig(t, testAPIConfig())
}

func testServerConfig(t *testing.T, cfg config.APIConfig) (*Server, *database.DB) {
	t.Helper()

	stats := NewStats()
	db, err := database.Open(context.Background(), database.Config{
		Path: filepath.Join(t.TempDir(), "api.db"),
	}, database.WithLogger(logging.Discard()), database.WithObserver(stats))
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv, err := New(Deps{
		Config:  cfg,
		Logger:  logging.Discard(),
		Store:   db,
		Version: "test",
		Stats:   stats,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, db
}

// do sends one request through the router.
func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeResponse[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

// wantEngineError asserts a 400 database failure response.
func wantEngineError(t *testing.T, w *httptest.ResponseRecorder, code database.Code) {
	t.Helper()
	wantEngineStatus(t, w, http.StatusBadRequest, code)
}

// wantEngineStatus asserts a database failure response with status.
func wantEngineStatus(t *testing.T, w *httptest.ResponseRecorder, status int, code database.Code) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d; body %s", w.Code, status, w.Body.String())
	}
	resp := decodeResponse[Error](t, w)
	if resp.Code != ErrCodeEngine {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeEngine)
	}
	if resp.EngineCode == nil || *resp.EngineCode != int(code) {
		t.Errorf("engine_code = %v, want %d", resp.EngineCode, code)
	}
}

// errStore is a Store whose every operation fails with err.
type errStore struct {
	err error
}

func (s errStore) HealthCheck(context.Context) error { return s.err }
func (s errStore) Path() string                      { return "broken.db" }
func (s errStore) Driver() string                    { return database.DriverCGO }
func (s errStore) HasConnection() bool               { return false }
func (s errStore) TableNames(context.Context) ([]string, error) {
	return nil, s.err
}
func (s errStore) IndexNames(context.Context, string) ([]string, error) {
	return nil, s.err
}
func (s errStore) CreateTable(context.Context, string, []string) error { return s.err }
func (s errStore) DropTable(context.Context, string) error             { return s.err }
func (s errStore) ExecuteQuery(context.Context, string, ...any) ([]database.Row, error) {
	return []database.Row{}, s.err
}
func (s errStore) ExecuteChange(context.Context, string, ...any) (database.Result, error) {
	return database.Result{}, s.err
}

// =============================================================================
// Server Tests
// =============================================================================

func TestNew_MissingDeps(t *testing.T) {
	if _, err := New(Deps{Store: errStore{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without store should fail")
	}
}

func TestStartClose(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Close()

	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/health", srv.Addr()))
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestStart_AddressInUse(t *testing.T) {
	first, _ := testServer(t)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer first.Close()

	cfg := testAPIConfig()
	_, port, _ := strings.Cut(first.Addr().String(), "127.0.0.1:")
	fmt.Sscan(port, &cfg.Port) //nolint:errcheck // Port comes from a bound listener

	second, _ := testServerConfig(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		second.Close()
		t.Error("Start() on a bound port should fail")
	}
}

// =============================================================================
// Middleware Tests
// =============================================================================

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decodeResponse[map[string]any](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestHealth_Unavailable(t *testing.T) {
	srv, err := New(Deps{Logger: logging.Discard(), Store: errStore{err: errors.New("disk gone")}})
	if err != nil {
		t.Fatal(err)
	}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want 503", w.Code)
	}
	if resp := decodeResponse[map[string]any](t, w); resp["status"] != "unavailable" {
		t.Errorf("health = %v", resp)
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	id := w.Header().Get(requestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("X-Request-ID = %q, want a UUID: %v", id, err)
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(requestIDHeader, "client-id-1")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get(requestIDHeader); got != "client-id-1" {
		t.Errorf("X-Request-ID = %q, want client-id-1", got)
	}
}

func TestCORS(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		origin string
		want   string
	}{
		{"http://console.local", "http://console.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/query", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want 204", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := do(t, h, http.MethodGet, "/", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if resp := decodeResponse[Error](t, w); resp.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeInternal)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/nope", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if resp := decodeResponse[Error](t, w); resp.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeNotFound)
	}
}

func TestBodyTooLarge(t *testing.T) {
	cfg := testAPIConfig()
	cfg.MaxBodyBytes = 16
	srv, _ := testServerConfig(t, cfg)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/query",
		`{"sql":"SELECT 1 AS one, 2 AS two, 3 AS three"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413; body %s", w.Code, w.Body.String())
	}
}

// =============================================================================
// Schema Tests
// =============================================================================

func TestCreateAndListTables(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	for _, name := range []string{"widgets", "gadgets"} {
		w := do(t, router, http.MethodPost, "/api/v1/tables/",
			`{"name":"`+name+`","columns":["id INTEGER PRIMARY KEY","label TEXT UNIQUE"]}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("create %s status = %d; body %s", name, w.Code, w.Body.String())
		}
	}

	w := do(t, router, http.MethodGet, "/api/v1/tables/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	resp := decodeResponse[struct {
		Tables []string `json:"tables"`
		Count  int      `json:"count"`
	}](t, w)
	if resp.Count != 2 || resp.Tables[0] != "gadgets" || resp.Tables[1] != "widgets" {
		t.Errorf("tables = %+v, want [gadgets widgets]", resp)
	}

	w = do(t, router, http.MethodGet, "/api/v1/indexes?table=widgets", "")
	indexes := decodeResponse[struct {
		Indexes []string `json:"indexes"`
	}](t, w)
	if len(indexes.Indexes) != 1 || !strings.HasPrefix(indexes.Indexes[0], "sqlite_autoindex_widgets") {
		t.Errorf("indexes = %v, want the UNIQUE autoindex", indexes.Indexes)
	}
}

func TestCreateTable_Validation(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{"name":`, http.StatusBadRequest},
		{"injected name", `{"name":"t; DROP TABLE x","columns":["a"]}`, http.StatusBadRequest},
		{"empty name", `{"name":"","columns":["a"]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/v1/tables/", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestCreateTable_NoColumns(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/tables/", `{"name":"empty","columns":[]}`)

	wantEngineError(t, w, database.CodeNoColumns)
	if resp := decodeResponse[Error](t, w); resp.During != "Create Table" {
		t.Errorf("during = %q, want Create Table", resp.During)
	}
}

func TestDropTable(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()

	if err := db.CreateTable(context.Background(), "doomed", []string{"id INTEGER"}); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodDelete, "/api/v1/tables/doomed", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("drop status = %d; body %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodDelete, "/api/v1/tables/doomed", "")
	wantEngineError(t, w, database.CodeError)
}

func TestSchema_StoreFailure(t *testing.T) {
	cause := &database.Error{During: "Table Names", Code: database.CodeSchemaNames}
	srv, err := New(Deps{Logger: logging.Discard(), Store: errStore{err: cause}})
	if err != nil {
		t.Fatal(err)
	}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/tables/", "")
	wantEngineStatus(t, w, http.StatusInternalServerError, database.CodeSchemaNames)
}

// =============================================================================
// Statement Tests
// =============================================================================

func TestExecAndQuery(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()

	if err := db.CreateTable(context.Background(), "items",
		[]string{"id INTEGER PRIMARY KEY", "name TEXT NOT NULL", "price REAL", "qty INTEGER"}); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodPost, "/api/v1/exec",
		`{"sql":"INSERT INTO items (name, price, qty) VALUES (?, ?, ?)","args":["bolt",0.25,40]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("exec status = %d; body %s", w.Code, w.Body.String())
	}
	exec := decodeResponse[ExecResponse](t, w)
	if exec.LastInsertID != 1 || exec.RowsAffected != 1 {
		t.Errorf("exec = %+v, want id 1, 1 row", exec)
	}

	w = do(t, router, http.MethodPost, "/api/v1/query",
		`{"sql":"SELECT name, price, qty, id FROM items WHERE qty > ?","args":[10]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d; body %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `{"name":"bolt","price":0.25,"qty":40,"id":1}`) {
		t.Errorf("query body = %s, want ordered row", body)
	}
	if strings.Contains(body, "faults") {
		t.Errorf("query body = %s, want no faults", body)
	}
	if resp := decodeResponse[map[string]any](t, w); resp["count"] != float64(1) {
		t.Errorf("count = %v, want 1", resp["count"])
	}
}

func TestQuery_EmptyResult(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/query",
		`{"sql":"SELECT name FROM sqlite_master WHERE 0"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"rows":[]`) {
		t.Errorf("body = %s, want empty rows array", w.Body.String())
	}
}

func TestQuery_Faults(t *testing.T) {
	srv, db := testServer(t)
	ctx := context.Background()

	if err := db.CreateTable(ctx, "events", []string{"at DATETIME"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecuteChange(ctx, "INSERT INTO events VALUES ('not a date')"); err != nil {
		t.Fatal(err)
	}

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/query", `{"sql":"SELECT at FROM events"}`)
	resp := decodeResponse[QueryResponse](t, w)
	if len(resp.Faults) != 1 || resp.Faults[0].Column != "at" || resp.Faults[0].Row != 0 {
		t.Errorf("faults = %+v, want one on events.at", resp.Faults)
	}
}

func TestExec_EngineErrors(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()

	if err := db.CreateTable(context.Background(), "uniq", []string{"k TEXT UNIQUE"}); err != nil {
		t.Fatal(err)
	}
	insert := `{"sql":"INSERT INTO uniq VALUES (?)","args":["a"]}`
	if w := do(t, router, http.MethodPost, "/api/v1/exec", insert); w.Code != http.StatusOK {
		t.Fatalf("first insert status = %d", w.Code)
	}

	tests := []struct {
		name string
		body string
		code database.Code
	}{
		{"constraint", insert, database.CodeConstraint},
		{"syntax", `{"sql":"INSERT INTO"}`, database.CodeError},
		{"too few args", `{"sql":"INSERT INTO uniq VALUES (?)"}`, database.CodeBindTooFew},
		{"too many args", `{"sql":"INSERT INTO uniq VALUES (?)","args":["b","c"]}`, database.CodeBindTooMany},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantEngineError(t, do(t, router, http.MethodPost, "/api/v1/exec", tt.body), tt.code)
		})
	}
}

func TestStatement_Validation(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name string
		body string
	}{
		{"missing sql", `{"args":[1]}`},
		{"blank sql", `{"sql":"   "}`},
		{"object arg", `{"sql":"SELECT ?","args":[{"a":1}]}`},
		{"array arg", `{"sql":"SELECT ?","args":[[1]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/api/v1/query", "/api/v1/exec"} {
				w := do(t, router, http.MethodPost, path, tt.body)
				if w.Code != http.StatusBadRequest {
					t.Errorf("%s status = %d, want 400", path, w.Code)
				}
				if resp := decodeResponse[Error](t, w); resp.Code != ErrCodeValidation {
					t.Errorf("%s code = %q, want %q", path, resp.Code, ErrCodeValidation)
				}
			}
		})
	}
}

func TestBindArgs(t *testing.T) {
	got, err := bindArgs([]any{json.Number("42"), json.Number("1.5"), json.Number("1e400"), "s", true, nil})
	if err == nil {
		t.Fatalf("bindArgs() = %v, want error for out-of-range number", got)
	}

	got, err = bindArgs([]any{json.Number("42"), json.Number("1.5"), "s", true, nil})
	if err != nil {
		t.Fatalf("bindArgs() error = %v", err)
	}
	want := []any{int64(42), 1.5, "s", true, nil}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d = %#v, want %#v", i, got[i], want[i])
		}
	}
}

func TestWriteDatabaseError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"engine", &database.Error{During: "SQL Step", Code: database.CodeConstraint}, http.StatusBadRequest, ErrCodeEngine},
		{"bind count", &database.Error{During: "SQL Step", Code: database.CodeBindTooFew}, http.StatusBadRequest, ErrCodeEngine},
		{"wrapped cant open", fmt.Errorf("health: %w", &database.Error{Code: database.CodeCantOpen}), http.StatusInternalServerError, ErrCodeEngine},
		{"io error", &database.Error{During: "SQL Step", Code: database.CodeIOErr}, http.StatusInternalServerError, ErrCodeEngine},
		{"disk full", &database.Error{During: "SQL Step", Code: database.CodeFull}, http.StatusInternalServerError, ErrCodeEngine},
		{"busy", &database.Error{During: "SQL Step", Code: database.CodeBusy}, http.StatusServiceUnavailable, ErrCodeEngine},
		{"interrupted", &database.Error{Code: database.CodeInterrupt}, http.StatusServiceUnavailable, ErrCodeEngine},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeDatabaseError(w, tt.err)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if resp := decodeResponse[Error](t, w); resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetrics(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	ctx := context.Background()

	if err := db.CreateTable(ctx, "m", []string{"v INTEGER"}); err != nil {
		t.Fatal(err)
	}
	_, _ = db.ExecuteChange(ctx, "INSERT INTO m VALUES (1), (2)") //nolint:errcheck // Counted below
	_, _ = db.ExecuteChange(ctx, "INSERT INTO nowhere VALUES (1)") //nolint:errcheck // Failure is the point

	w := do(t, router, http.MethodGet, "/api/v1/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	m := decodeResponse[SystemMetrics](t, w)

	if m.Database.Driver != database.DriverCGO || m.Database.HasConnection {
		t.Errorf("database = %+v", m.Database)
	}

	byOp := make(map[string]OperationMetrics)
	for _, op := range m.Statements {
		byOp[op.Operation] = op
	}
	change := byOp[database.OpChange]
	if change.Count != 2 || change.Errors != 1 || change.RowsAffected != 2 {
		t.Errorf("change metrics = %+v, want 2 runs, 1 error, 2 rows affected", change)
	}
	if change.LastCode != int(database.CodeError) {
		t.Errorf("change last_code = %d, want 1", change.LastCode)
	}
	if byOp[database.OpCreateTable].Count != 1 {
		t.Errorf("create_table metrics = %+v", byOp[database.OpCreateTable])
	}
}

func TestStats_NilSnapshot(t *testing.T) {
	var st *Stats
	if got := st.Snapshot(); got == nil || len(got) != 0 {
		t.Errorf("Snapshot() = %v, want empty slice", got)
	}
}
