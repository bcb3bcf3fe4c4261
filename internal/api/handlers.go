package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tradebot/internal/domain"
	"tradebot/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// OrderView is the JSON form of a journaled order.
type OrderView struct {
	ID             string    `json:"id"`
	ClientOrderID  string    `json:"client_order_id"`
	Ticker         string    `json:"ticker"`
	Side           string    `json:"side"`
	Type           string    `json:"type"`
	TimeInForce    string    `json:"time_in_force,omitempty"`
	Role           string    `json:"role,omitempty"`
	Qty            string    `json:"qty"`
	LimitPrice     string    `json:"limit_price,omitempty"`
	StopPrice      string    `json:"stop_price,omitempty"`
	Status         string    `json:"status"`
	FilledQty      string    `json:"filled_qty"`
	FilledAvgPrice string    `json:"filled_avg_price"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SignalView is the JSON form of a recorded signal.
type SignalView struct {
	ID         int64     `json:"id"`
	StrategyID string    `json:"strategy"`
	Ticker     string    `json:"ticker"`
	Action     string    `json:"action"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReportView is the JSON form of a daily report.
type ReportView struct {
	Date          string `json:"date"`
	Result        string `json:"result"`
	Commissions   string `json:"commissions"`
	ResultPercent string `json:"result_percent"`
}

func orderView(o domain.Order) OrderView {
	v := OrderView{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Ticker:         o.Ticker,
		Side:           string(o.Side),
		Type:           string(o.Type),
		TimeInForce:    string(o.TimeInForce),
		Role:           string(o.Role),
		Qty:            o.Qty.String(),
		Status:         string(o.Status),
		FilledQty:      o.FilledQty.String(),
		FilledAvgPrice: o.FilledAvgPrice.String(),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.LimitPrice != nil {
		v.LimitPrice = o.LimitPrice.String()
	}
	if o.StopPrice != nil {
		v.StopPrice = o.StopPrice.String()
	}
	return v
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Snapshot())
}

func (s *Server) handleHealth(c *gin.Context) {
	if !s.status.Snapshot().Healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stopped"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleOrders lists journaled orders with ?status= (default filled).
func (s *Server) handleOrders(c *gin.Context) {
	status := domain.OrderStatus(c.DefaultQuery("status", string(domain.OrderStatusFilled)))
	orders, err := s.orders.ListOrders(c.Request.Context(), status)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderView(o))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// handleOrder returns one order by client order ID.
func (s *Server) handleOrder(c *gin.Context) {
	o, err := s.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(*o))
}

// handleOpenOrders lists orders working at the broker right now.
func (s *Server) handleOpenOrders(c *gin.Context) {
	orders, err := s.open.ListOpenOrders(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderView(o))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// handleSignals lists recent signals of ?strategy= (default: the running one).
func (s *Server) handleSignals(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	strategy := c.DefaultQuery("strategy", s.status.Snapshot().Strategy)
	recs, err := s.signals.ListSignals(c.Request.Context(), strategy, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]SignalView, 0, len(recs))
	for _, r := range recs {
		out = append(out, SignalView{
			ID:         r.ID,
			StrategyID: r.StrategyID,
			Ticker:     r.Ticker,
			Action:     string(r.Action),
			CreatedAt:  r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) handleReports(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	reps, err := s.reports.ListReports(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]ReportView, 0, len(reps))
	for _, r := range reps {
		out = append(out, ReportView{
			Date:          r.Date.Format("2006-01-02"),
			Result:        r.Result.StringFixed(2),
			Commissions:   r.Commissions.StringFixed(2),
			ResultPercent: r.ResultPercent.StringFixed(2),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return min(n, maxLimit), true
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error("api request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
