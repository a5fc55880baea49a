package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flashsale/clock"
	"flashsale/seckill/application"
	"flashsale/seckill/domain"
	"flashsale/seckill/infra/memory"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type decodedEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) decodedEnvelope {
	t.Helper()
	var body decodedEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

type testServer struct {
	mux     *http.ServeMux
	store   *memory.Store
	counter *memory.Counter
	broker  *memory.Broker
	mat     *application.Materializer
}

func newTestServer(t *testing.T, stock int64) *testServer {
	t.Helper()
	clk := clock.NewManual(t0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	counter := memory.NewCounter()
	markers := memory.NewMarkers()
	broker := memory.NewBroker(3)

	store.PutActivity(domain.Activity{
		ID: 1, ProductID: 10, PriceCents: 1990, TotalStock: stock, AvailableStock: stock,
		StartAt: t0.Add(-time.Minute), EndAt: t0.Add(time.Hour), Status: domain.ActivityActive,
	})
	_ = counter.WarmUp(context.Background(), 1, stock, 0)

	engine := application.NewEngine(application.EngineDeps{
		Activities: store, Counter: counter, Locker: memory.NewLocker(),
		Markers: markers, Publisher: broker, Orders: store,
	}, clk, application.WithEngineLogger(logger),
		application.WithTokenFunc(func(time.Time) (string, error) { return "tok-1", nil }))
	orders := application.NewOrderService(application.OrderServiceDeps{
		Tx: store, Activities: store, Orders: store, Counter: counter, Markers: markers,
	}, logger)
	mat := application.NewMaterializer(application.MaterializerDeps{
		Tx: store, Activities: store, Orders: store, Counter: counter, Markers: markers,
	}, clk, application.WithMaterializerLogger(logger))

	h := &Handler{Engine: engine, Orders: orders, Activities: store, Clock: clk, Logger: logger}
	return &testServer{mux: h.Routes(), store: store, counter: counter, broker: broker, mat: mat}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, r)
	return w
}

func TestHandler_AllocateFlow(t *testing.T) {
	s := newTestServer(t, 1)

	w := s.do(http.MethodPost, "/api/seckill/do", `{"user_id":42,"activity_id":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeEnvelope(t, w)
	if body.Code != CodeSuccess || !strings.Contains(string(body.Data), `"token":"tok-1"`) {
		t.Fatalf("unexpected accept body: %+v data=%s", body, body.Data)
	}

	if body := decodeEnvelope(t, s.do(http.MethodPost, "/api/seckill/do", `{"user_id":42,"activity_id":1}`)); body.Code != CodeAlreadyAllocated {
		t.Fatalf("expected already allocated, got %+v", body)
	}
	if body := decodeEnvelope(t, s.do(http.MethodPost, "/api/seckill/do", `{"user_id":43,"activity_id":1}`)); body.Code != CodeSoldOut {
		t.Fatalf("expected sold out, got %+v", body)
	}
	if body := decodeEnvelope(t, s.do(http.MethodPost, "/api/seckill/do", `{"user_id":43,"activity_id":9}`)); body.Code != CodeNotActive {
		t.Fatalf("expected not active, got %+v", body)
	}

	res := decodeEnvelope(t, s.do(http.MethodGet, "/api/seckill/result?user_id=42&activity_id=1", ""))
	if string(res.Data) != `{"status":"pending"}` {
		t.Fatalf("expected pending, got %s", res.Data)
	}

	s.broker.Drain(context.Background(), s.mat.Handle, s.mat.HandleDeadLetter)

	res = decodeEnvelope(t, s.do(http.MethodGet, "/api/seckill/result?user_id=42&activity_id=1", ""))
	if string(res.Data) != `{"status":"confirmed"}` {
		t.Fatalf("expected confirmed, got %s", res.Data)
	}
	res = decodeEnvelope(t, s.do(http.MethodGet, "/api/seckill/result?user_id=43&activity_id=1", ""))
	if string(res.Data) != `{"status":"not_found"}` {
		t.Fatalf("expected not_found, got %s", res.Data)
	}
}

func TestHandler_AllocateValidation(t *testing.T) {
	s := newTestServer(t, 1)

	for _, body := range []string{`not json`, `{"user_id":0,"activity_id":1}`, `{"user_id":1}`} {
		w := s.do(http.MethodPost, "/api/seckill/do", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
	}
	if w := s.do(http.MethodGet, "/api/seckill/do", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/seckill/result?user_id=x&activity_id=1", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad query, got %d", w.Code)
	}
}

func TestHandler_StockAndActivities(t *testing.T) {
	s := newTestServer(t, 5)
	_ = s.do(http.MethodPost, "/api/seckill/do", `{"user_id":42,"activity_id":1}`)

	body := decodeEnvelope(t, s.do(http.MethodGet, "/api/seckill/stock/1", ""))
	var view domain.StockView
	if err := json.Unmarshal(body.Data, &view); err != nil {
		t.Fatalf("decode stock: %v", err)
	}
	want := domain.StockView{ActivityID: 1, Counter: 4, CounterPresent: true, DurableAvailable: 5, Total: 5}
	if view != want {
		t.Fatalf("expected %+v, got %+v", want, view)
	}

	if w := s.do(http.MethodGet, "/api/seckill/stock/77", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown activity, got %d", w.Code)
	}

	body = decodeEnvelope(t, s.do(http.MethodGet, "/api/seckill/activities", ""))
	var list []activityView
	if err := json.Unmarshal(body.Data, &list); err != nil {
		t.Fatalf("decode activities: %v", err)
	}
	if len(list) != 1 || list[0].ID != 1 || !list[0].Active || list[0].Status != "active" {
		t.Fatalf("unexpected activities: %+v", list)
	}
}

func TestHandler_OrderAndCancel(t *testing.T) {
	s := newTestServer(t, 1)
	_ = s.do(http.MethodPost, "/api/seckill/do", `{"user_id":42,"activity_id":1}`)
	s.broker.Drain(context.Background(), s.mat.Handle, s.mat.HandleDeadLetter)

	body := decodeEnvelope(t, s.do(http.MethodGet, "/api/seckill/orders/tok-1", ""))
	if !strings.Contains(string(body.Data), `"status":"confirmed"`) {
		t.Fatalf("expected confirmed order, got %s", body.Data)
	}

	if w := s.do(http.MethodPost, "/api/seckill/orders/tok-1/cancel", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on cancel, got %d", w.Code)
	}
	if v, _, _ := s.counter.Value(context.Background(), 1); v != 1 {
		t.Fatalf("expected counter back to 1, got %d", v)
	}
	if w := s.do(http.MethodPost, "/api/seckill/orders/nope/cancel", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown order, got %d", w.Code)
	}
}

type failingAllocator struct{ Allocator }

func (failingAllocator) Allocate(context.Context, int64, int64) (domain.Decision, error) {
	return domain.Decision{}, errors.Join(domain.ErrInfrastructureUnavailable, errors.New("redis down"))
}

func TestHandler_InfrastructureFailureIs503(t *testing.T) {
	h := &Handler{Engine: failingAllocator{}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	mux := h.Routes()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/seckill/do", strings.NewReader(`{"user_id":1,"activity_id":1}`)))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestHandler_Healthz(t *testing.T) {
	healthy := true
	h := &Handler{Health: func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("redis: connection refused")
	}}
	mux := h.Routes()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	healthy = false
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandler_AllocateMiddlewareOnlyWrapsAllocate(t *testing.T) {
	s := newTestServer(t, 1)
	blocked := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "busy")
		})
	}
	h := &Handler{Engine: nil, Activities: s.store, Clock: clock.NewManual(t0)}
	mux := h.Routes(blocked)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/seckill/do", strings.NewReader(`{}`)))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected allocate to be wrapped, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/seckill/activities", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected activities untouched, got %d", w.Code)
	}
}
