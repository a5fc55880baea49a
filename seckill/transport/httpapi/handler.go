package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flashsale/clock"
	"flashsale/seckill/domain"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Allocator interface {
	Allocate(ctx context.Context, requesterID, activityID int64) (domain.Decision, error)
	Status(ctx context.Context, requesterID, activityID int64) (domain.AllocationStatus, error)
	Stock(ctx context.Context, activityID int64) (domain.StockView, error)
}

type Orders interface {
	Get(ctx context.Context, token string) (domain.Order, error)
	Cancel(ctx context.Context, token string) error
}

// HealthCheck retorna erro se alguma dependência essencial não responde.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	Engine     Allocator
	Orders     Orders
	Activities domain.ActivityLister
	Clock      clock.Clock
	Logger     *slog.Logger
	Health     HealthCheck
}

type allocateRequest struct {
	UserID     int64 `json:"user_id"`
	ActivityID int64 `json:"activity_id"`
}

type activityView struct {
	ID             int64     `json:"id"`
	ProductID      int64     `json:"product_id"`
	PriceCents     int64     `json:"price_cents"`
	TotalStock     int64     `json:"total_stock"`
	AvailableStock int64     `json:"available_stock"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	Status         string    `json:"status"`
	Active         bool      `json:"active"`
}

type orderView struct {
	Token      string    `json:"token"`
	UserID     int64     `json:"user_id"`
	ActivityID int64     `json:"activity_id"`
	ProductID  int64     `json:"product_id"`
	PriceCents int64     `json:"price_cents"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Routes registra as rotas. allocateMW envolve só a rota de alocação.
func (h *Handler) Routes(allocateMW ...func(http.Handler) http.Handler) *http.ServeMux {
	var allocate http.Handler = http.HandlerFunc(h.allocate)
	for i := len(allocateMW) - 1; i >= 0; i-- {
		allocate = allocateMW[i](allocate)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/seckill/do", allocate)
	mux.HandleFunc("GET /api/seckill/result", h.result)
	mux.HandleFunc("GET /api/seckill/stock/{activityId}", h.stock)
	mux.HandleFunc("GET /api/seckill/activities", h.activities)
	mux.HandleFunc("GET /api/seckill/orders/{token}", h.order)
	mux.HandleFunc("POST /api/seckill/orders/{token}/cancel", h.cancel)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid json body")
		return
	}
	if req.UserID <= 0 || req.ActivityID <= 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "user_id and activity_id must be positive")
		return
	}

	decision, err := h.Engine.Allocate(r.Context(), req.UserID, req.ActivityID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger().Debug("allocate", "user_id", req.UserID, "activity_id", req.ActivityID, "outcome", decision.Outcome.String())
	writeDecision(w, decision)
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	userID, ok1 := parseID(r.URL.Query().Get("user_id"))
	activityID, ok2 := parseID(r.URL.Query().Get("activity_id"))
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "user_id and activity_id must be positive integers")
		return
	}

	st, err := h.Engine.Status(r.Context(), userID, activityID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, map[string]string{"status": st.String()})
}

func (h *Handler) stock(w http.ResponseWriter, r *http.Request) {
	activityID, ok := parseID(r.PathValue("activityId"))
	if !ok {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid activity id")
		return
	}
	view, err := h.Engine.Stock(r.Context(), activityID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, view)
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	now := h.Clock.Now()
	list, err := h.Activities.ListOpenActivities(r.Context(), now)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]activityView, 0, len(list))
	for _, a := range list {
		out = append(out, activityView{
			ID:             a.ID,
			ProductID:      a.ProductID,
			PriceCents:     a.PriceCents,
			TotalStock:     a.TotalStock,
			AvailableStock: a.AvailableStock,
			StartAt:        a.StartAt,
			EndAt:          a.EndAt,
			Status:         a.Status.String(),
			Active:         a.IsActive(now),
		})
	}
	writeOK(w, out)
}

func (h *Handler) order(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), r.PathValue("token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, orderView{
		Token:      o.Token,
		UserID:     o.RequesterID,
		ActivityID: o.ActivityID,
		ProductID:  o.ProductID,
		PriceCents: o.PriceCents,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.Orders.Cancel(r.Context(), r.PathValue("token")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, map[string]string{"status": string(domain.OrderCancelled)})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Health(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
			return
		}
	}
	writeOK(w, map[string]string{"status": "ok"})
}

// fail mapeia erros para status HTTP. Só falhas inesperadas são logadas como erro.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrActivityNotFound), errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrInfrastructureUnavailable):
		h.logger().Error("infrastructure unavailable", "path", r.URL.Path, "err", err)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "service temporarily unavailable")
	default:
		h.logger().Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
