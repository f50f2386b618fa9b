package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven/mocks"
)

// Mock services for testing

type mockAuthService struct {
	verifyIngressKeyFn func(ctx context.Context, key string) error
	validateTokenFn    func(ctx context.Context, token string) (*domain.AuthContext, error)
}

func (m *mockAuthService) VerifyIngressKey(ctx context.Context, key string) error {
	if m.verifyIngressKeyFn != nil {
		return m.verifyIngressKeyFn(ctx, key)
	}
	return domain.ErrInvalidAPIKey
}

func (m *mockAuthService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	if m.validateTokenFn != nil {
		return m.validateTokenFn(ctx, token)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) IssueToken(ctx context.Context, subject string, role domain.Role, ttl time.Duration) (*domain.IssuedToken, error) {
	return nil, errors.New("not implemented")
}

type mockIngressService struct {
	submitFn func(ctx context.Context, body []byte) (*domain.IngressResult, error)
}

func (m *mockIngressService) Submit(ctx context.Context, body []byte) (*domain.IngressResult, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, body)
	}
	return nil, errors.New("not implemented")
}

type mockSourceService struct {
	triggerPollFn func(ctx context.Context, sourceID string) (*domain.Task, error)
	watermarkFn   func(ctx context.Context, sourceID string) (*domain.WatermarkState, error)
	sources       []domain.ScheduledPoll
}

func (m *mockSourceService) TriggerPoll(ctx context.Context, sourceID string) (*domain.Task, error) {
	if m.triggerPollFn != nil {
		return m.triggerPollFn(ctx, sourceID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSourceService) Watermark(ctx context.Context, sourceID string) (*domain.WatermarkState, error) {
	if m.watermarkFn != nil {
		return m.watermarkFn(ctx, sourceID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSourceService) Sources(ctx context.Context) []domain.ScheduledPoll {
	return m.sources
}

type mockLedgerService struct {
	rowsFn func(ctx context.Context, period string) ([]domain.LedgerRow, error)
}

func (m *mockLedgerService) Rows(ctx context.Context, period string) ([]domain.LedgerRow, error) {
	if m.rowsFn != nil {
		return m.rowsFn(ctx, period)
	}
	return nil, nil
}

type mockAggregateService struct {
	getFn     func(ctx context.Context, period string) (*domain.PeriodAggregate, error)
	listFn    func(ctx context.Context) ([]*domain.PeriodAggregate, error)
	refreshFn func(ctx context.Context, period string) (*domain.PeriodAggregate, error)
}

func (m *mockAggregateService) Get(ctx context.Context, period string) (*domain.PeriodAggregate, error) {
	if m.getFn != nil {
		return m.getFn(ctx, period)
	}
	return nil, domain.ErrNotFound
}

func (m *mockAggregateService) List(ctx context.Context) ([]*domain.PeriodAggregate, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockAggregateService) Refresh(ctx context.Context, period string) (*domain.PeriodAggregate, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, period)
	}
	return nil, errors.New("not implemented")
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

// tokenAuth accepts "admin-token" and "viewer-token"
func tokenAuth() *mockAuthService {
	return &mockAuthService{
		verifyIngressKeyFn: func(_ context.Context, key string) error {
			if key == "secret" {
				return nil
			}
			return domain.ErrInvalidAPIKey
		},
		validateTokenFn: func(_ context.Context, token string) (*domain.AuthContext, error) {
			switch token {
			case "admin-token":
				return &domain.AuthContext{Subject: "ops", Role: domain.RoleAdmin}, nil
			case "viewer-token":
				return &domain.AuthContext{Subject: "ro", Role: domain.RoleViewer}, nil
			}
			return nil, domain.ErrTokenInvalid
		},
	}
}

type testDeps struct {
	ingress    *mockIngressService
	sources    *mockSourceService
	ledger     *mockLedgerService
	aggregates *mockAggregateService
	checks     map[string]Pinger
}

func newTestServer(d testDeps) *Server {
	if d.ingress == nil {
		d.ingress = &mockIngressService{}
	}
	if d.sources == nil {
		d.sources = &mockSourceService{}
	}
	if d.ledger == nil {
		d.ledger = &mockLedgerService{}
	}
	if d.aggregates == nil {
		d.aggregates = &mockAggregateService{}
	}
	cfg := DefaultConfig()
	cfg.Version = "1.2.3"
	return NewServer(cfg, Services{
		Auth:       tokenAuth(),
		Ingress:    d.ingress,
		Sources:    d.sources,
		Ledger:     d.ledger,
		Aggregates: d.aggregates,
	}, d.checks)
}

func do(t *testing.T, s *Server, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Error
}

// Health endpoints

func TestHandleHealth(t *testing.T) {
	rr := do(t, newTestServer(testDeps{}), "GET", "/health", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %s", resp.Status)
	}
}

func TestHandleVersion(t *testing.T) {
	rr := do(t, newTestServer(testDeps{}), "GET", "/version", "", nil)

	var resp VersionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", resp.Version)
	}
}

func TestHandleReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checks configured",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{},
		},
		{
			name:       "all healthy",
			checks:     map[string]Pinger{"database": &mockPinger{}, "redis": &mockPinger{}},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "redis": "ok"},
		},
		{
			name:       "redis down",
			checks:     map[string]Pinger{"database": &mockPinger{}, "redis": &mockPinger{err: errors.New("dial tcp: refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "ok", "redis": "unavailable"},
		},
		{
			name:       "nil pinger skipped",
			checks:     map[string]Pinger{"redis": nil},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, newTestServer(testDeps{checks: tt.checks}), "GET", "/ready", "", nil)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			var resp ReadyResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Fatalf("expected checks %v, got %v", tt.wantChecks, resp.Checks)
			}
			for k, v := range tt.wantChecks {
				if resp.Checks[k] != v {
					t.Errorf("check %s: expected %s, got %s", k, v, resp.Checks[k])
				}
			}
		})
	}
}

func TestHandleReady_QueueStats(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	if err := queue.Enqueue(context.Background(), domain.NewPollTask("inbox", "f")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rr := do(t, newTestServer(testDeps{checks: map[string]Pinger{"queue": queue}}), "GET", "/ready", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp ReadyResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Queue == nil || resp.Queue.PendingCount != 1 {
		t.Errorf("expected one pending task, got %+v", resp.Queue)
	}
}

func TestHandleSwaggerDoc(t *testing.T) {
	rr := do(t, newTestServer(testDeps{}), "GET", "/swagger/doc.json", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("document is not JSON: %v", err)
	}
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		t.Fatal("expected paths object")
	}
	if _, ok := paths["/ingress"]; !ok {
		t.Error("expected /ingress in paths")
	}
	if doc["basePath"] != "/api/v1" {
		t.Errorf("expected basePath /api/v1, got %v", doc["basePath"])
	}
}

// Ingress

func TestHandleIngress(t *testing.T) {
	body := []byte(`{"fileId":"f1","name":"r.jpg","mimeType":"image/jpeg","createdTime":"2025-09-02T10:00:00Z","folderId":"d"}`)

	t.Run("accepted", func(t *testing.T) {
		var got []byte
		s := newTestServer(testDeps{ingress: &mockIngressService{
			submitFn: func(_ context.Context, b []byte) (*domain.IngressResult, error) {
				got = b
				return &domain.IngressResult{Status: "ok", TaskID: "t-1", IdempotencyKey: "k"}, nil
			},
		}})

		req := httptest.NewRequest("POST", "/api/v1/ingress", bytes.NewReader(body))
		req.Header.Set(APIKeyHeader, "secret")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if !bytes.Equal(got, body) {
			t.Errorf("expected body to be passed through, got %s", got)
		}
		var resp domain.IngressResult
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.TaskID != "t-1" || resp.Status != "ok" {
			t.Errorf("unexpected result %+v", resp)
		}
	})

	t.Run("wrong key never reaches service", func(t *testing.T) {
		called := false
		s := newTestServer(testDeps{ingress: &mockIngressService{
			submitFn: func(context.Context, []byte) (*domain.IngressResult, error) {
				called = true
				return nil, nil
			},
		}})

		req := httptest.NewRequest("POST", "/api/v1/ingress", bytes.NewReader(body))
		req.Header.Set(APIKeyHeader, "nope")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rr.Code)
		}
		if called {
			t.Error("service should not be called without a valid key")
		}
	})

	t.Run("invalid event", func(t *testing.T) {
		s := newTestServer(testDeps{ingress: &mockIngressService{
			submitFn: func(context.Context, []byte) (*domain.IngressResult, error) {
				return nil, fmt.Errorf("%w: mimeType looks invalid", domain.ErrInvalidInput)
			},
		}})

		req := httptest.NewRequest("POST", "/api/v1/ingress", bytes.NewReader(body))
		req.Header.Set(APIKeyHeader, "secret")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rr.Code)
		}
		if msg := decodeError(t, rr); !strings.Contains(msg, "mimeType") {
			t.Errorf("expected mimeType in error, got %q", msg)
		}
	})

	t.Run("queue failure", func(t *testing.T) {
		s := newTestServer(testDeps{ingress: &mockIngressService{
			submitFn: func(context.Context, []byte) (*domain.IngressResult, error) {
				return nil, errors.New("redis: connection refused")
			},
		}})

		req := httptest.NewRequest("POST", "/api/v1/ingress", bytes.NewReader(body))
		req.Header.Set(APIKeyHeader, "secret")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected status 500, got %d", rr.Code)
		}
		if msg := decodeError(t, rr); msg != "failed to accept event" {
			t.Errorf("expected generic message, got %q", msg)
		}
	})

	t.Run("body too large", func(t *testing.T) {
		s := newTestServer(testDeps{})
		big := bytes.Repeat([]byte("x"), maxIngressBody+10)

		req := httptest.NewRequest("POST", "/api/v1/ingress", bytes.NewReader(big))
		req.Header.Set(APIKeyHeader, "secret")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected status 413, got %d", rr.Code)
		}
	})
}

// Source endpoints

func TestHandleListSources(t *testing.T) {
	s := newTestServer(testDeps{sources: &mockSourceService{
		sources: []domain.ScheduledPoll{{SourceID: "drive", FolderID: "f", Interval: time.Minute, Enabled: true}},
	}})

	rr := do(t, s, "GET", "/api/v1/sources", "viewer-token", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp []domain.ScheduledPoll
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].SourceID != "drive" {
		t.Errorf("unexpected sources %+v", resp)
	}
}

func TestHandleGetWatermark(t *testing.T) {
	created := time.Date(2025, 9, 2, 10, 0, 0, 0, time.UTC)
	svc := &mockSourceService{
		watermarkFn: func(_ context.Context, id string) (*domain.WatermarkState, error) {
			if id != "drive" {
				return nil, domain.ErrNotFound
			}
			st := domain.NewWatermarkState()
			st.LastCreatedAt = created
			st.Seen["f1"] = created
			return st, nil
		},
	}
	s := newTestServer(testDeps{sources: svc})

	t.Run("found", func(t *testing.T) {
		rr := do(t, s, "GET", "/api/v1/sources/drive/watermark", "viewer-token", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var state domain.WatermarkState
		if err := json.NewDecoder(rr.Body).Decode(&state); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !state.LastCreatedAt.Equal(created) {
			t.Errorf("expected lastCreatedAt %v, got %v", created, state.LastCreatedAt)
		}
		if _, ok := state.Seen["f1"]; !ok {
			t.Error("expected f1 in seen set")
		}
	})

	t.Run("unknown source", func(t *testing.T) {
		rr := do(t, s, "GET", "/api/v1/sources/nope/watermark", "viewer-token", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("no token", func(t *testing.T) {
		rr := do(t, s, "GET", "/api/v1/sources/drive/watermark", "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rr.Code)
		}
	})
}

func TestHandleTriggerPoll(t *testing.T) {
	svc := &mockSourceService{
		triggerPollFn: func(_ context.Context, id string) (*domain.Task, error) {
			if id != "drive" {
				return nil, domain.ErrNotFound
			}
			return domain.NewPollTask("drive", "folder"), nil
		},
	}
	s := newTestServer(testDeps{sources: svc})

	tests := []struct {
		name       string
		path       string
		token      string
		wantStatus int
	}{
		{"admin", "/api/v1/sources/drive/poll", "admin-token", http.StatusAccepted},
		{"viewer forbidden", "/api/v1/sources/drive/poll", "viewer-token", http.StatusForbidden},
		{"unknown source", "/api/v1/sources/other/poll", "admin-token", http.StatusNotFound},
		{"anonymous", "/api/v1/sources/drive/poll", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s, "POST", tt.path, tt.token, nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus == http.StatusAccepted {
				var resp TaskResponse
				if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.Type != string(domain.TaskTypePoll) || resp.TaskID == "" {
					t.Errorf("unexpected task response %+v", resp)
				}
			}
		})
	}
}

// Period endpoints

func TestHandleGetAggregate(t *testing.T) {
	svc := &mockAggregateService{
		getFn: func(_ context.Context, period string) (*domain.PeriodAggregate, error) {
			switch {
			case !domain.ValidPeriod(period):
				return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPeriod, period)
			case period == "2025-09":
				return &domain.PeriodAggregate{Period: period, ReceiptsAll: 3, ReceiptsValid: 2}, nil
			}
			return nil, domain.ErrNotFound
		},
	}
	s := newTestServer(testDeps{aggregates: svc})

	tests := []struct {
		name       string
		period     string
		wantStatus int
	}{
		{"stored", "2025-09", http.StatusOK},
		{"missing", "2025-10", http.StatusNotFound},
		{"bad period", "2025-9", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s, "GET", "/api/v1/periods/"+tt.period+"/aggregate", "viewer-token", nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus == http.StatusOK {
				var agg domain.PeriodAggregate
				if err := json.NewDecoder(rr.Body).Decode(&agg); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if agg.ReceiptsAll != 3 || agg.ReceiptsValid != 2 {
					t.Errorf("unexpected aggregate %+v", agg)
				}
			}
		})
	}
}

func TestHandleGetAggregate_ETag(t *testing.T) {
	current := &domain.PeriodAggregate{Period: "2025-09", ReceiptsAll: 3, LastUpdated: time.Unix(100, 0)}
	svc := &mockAggregateService{
		getFn: func(context.Context, string) (*domain.PeriodAggregate, error) {
			agg := *current
			return &agg, nil
		},
	}
	s := newTestServer(testDeps{aggregates: svc})

	get := func(ifNoneMatch string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/v1/periods/2025-09/aggregate", nil)
		req.Header.Set("Authorization", "Bearer viewer-token")
		if ifNoneMatch != "" {
			req.Header.Set("If-None-Match", ifNoneMatch)
		}
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		return rr
	}

	first := get("")
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	tag := first.Header().Get("ETag")
	fp, err := current.Fingerprint()
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if tag != `"`+fp+`"` {
		t.Fatalf("expected ETag of the fingerprint, got %q", tag)
	}

	if rr := get(tag); rr.Code != http.StatusNotModified || rr.Body.Len() != 0 {
		t.Errorf("expected empty 304, got %d with %q", rr.Code, rr.Body.String())
	}
	if rr := get(`"other", W/` + tag); rr.Code != http.StatusNotModified {
		t.Errorf("expected list match to give 304, got %d", rr.Code)
	}

	current.LastUpdated = time.Unix(200, 0)
	if rr := get(tag); rr.Code != http.StatusNotModified {
		t.Errorf("a refresh over the same rows should keep the tag, got %d", rr.Code)
	}

	current.ReceiptsAll = 4
	rr := get(tag)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after the aggregate changed, got %d", rr.Code)
	}
	if rr.Header().Get("ETag") == tag {
		t.Error("expected a new ETag after the aggregate changed")
	}
}

func TestHandleRefreshAggregate(t *testing.T) {
	var refreshed string
	svc := &mockAggregateService{
		refreshFn: func(_ context.Context, period string) (*domain.PeriodAggregate, error) {
			refreshed = period
			return &domain.PeriodAggregate{Period: period, ReceiptsAll: 1}, nil
		},
	}
	s := newTestServer(testDeps{aggregates: svc})

	rr := do(t, s, "POST", "/api/v1/periods/2025-09/aggregate", "viewer-token", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer: expected status 403, got %d", rr.Code)
	}
	if refreshed != "" {
		t.Fatal("viewer must not trigger a refresh")
	}

	rr = do(t, s, "POST", "/api/v1/periods/2025-09/aggregate", "admin-token", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin: expected status 200, got %d", rr.Code)
	}
	if refreshed != "2025-09" {
		t.Errorf("expected refresh of 2025-09, got %q", refreshed)
	}
	if rr.Header().Get("ETag") == "" {
		t.Error("expected an ETag on the refreshed aggregate")
	}
}

func TestHandleListAggregates(t *testing.T) {
	s := newTestServer(testDeps{})

	rr := do(t, s, "GET", "/api/v1/periods", "viewer-token", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("expected empty array, got %s", body)
	}
}

func TestHandleListRows(t *testing.T) {
	total := 12.5
	svc := &mockLedgerService{
		rowsFn: func(_ context.Context, period string) ([]domain.LedgerRow, error) {
			if period == "2025-09" {
				return []domain.LedgerRow{
					{Date: "2025-09-02", Vendor: "Kedai", Item: "Teh", Qty: 1, Total: &total, Status: domain.RowStatusOK},
				}, nil
			}
			return nil, nil
		},
	}
	s := newTestServer(testDeps{ledger: svc})

	t.Run("rows", func(t *testing.T) {
		rr := do(t, s, "GET", "/api/v1/periods/2025-09/rows", "viewer-token", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp RowsResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(resp.Header) != len(domain.LedgerHeader) {
			t.Errorf("expected %d header columns, got %d", len(domain.LedgerHeader), len(resp.Header))
		}
		if len(resp.Rows) != 1 || resp.Rows[0].Vendor != "Kedai" {
			t.Errorf("unexpected rows %+v", resp.Rows)
		}
	})

	t.Run("empty period renders empty list", func(t *testing.T) {
		rr := do(t, s, "GET", "/api/v1/periods/2025-01/rows", "viewer-token", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"rows":[]`) {
			t.Errorf("expected empty rows array, got %s", rr.Body.String())
		}
	})
}

func TestWriteServiceError(t *testing.T) {
	s := newTestServer(testDeps{})

	tests := []struct {
		err        error
		wantStatus int
	}{
		{fmt.Errorf("wrap: %w", domain.ErrInvalidInput), http.StatusBadRequest},
		{domain.ErrInvalidPeriod, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidAPIKey, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			s.writeServiceError(rr, tt.err, "failed")
			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
		})
	}
}
