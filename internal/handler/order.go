package handler

import (
    "context"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/seckill/internal/model"
)

// Orders is the customer order surface.
type Orders interface {
    List(ctx context.Context, userID uint64, status *model.OrderStatus) ([]model.Order, error)
    Get(ctx context.Context, userID, orderID uint64) (*model.Order, error)
    Stats(ctx context.Context, userID uint64) (model.OrderStats, error)
    Pay(ctx context.Context, userID, orderID uint64) error
    Cancel(ctx context.Context, userID, orderID uint64) error
}

// OrderHandler serves the authenticated caller's orders.
type OrderHandler struct {
    orders Orders
    log    *zap.Logger
}

func NewOrderHandler(orders Orders, log *zap.Logger) *OrderHandler {
    return &OrderHandler{orders: orders, log: nopIfNil(log)}
}

// List handles GET /v1/orders with an optional ?status= filter.
func (h *OrderHandler) List(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    status, ok := statusFilter(c)
    if !ok {
        return badRequest(c, "invalid status")
    }
    items, err := h.orders.List(c.Request().Context(), uid, status)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// statusFilter reads the optional numeric ?status= query parameter.
func statusFilter(c echo.Context) (*model.OrderStatus, bool) {
    raw := c.QueryParam("status")
    if raw == "" {
        return nil, true
    }
    n, err := strconv.ParseUint(raw, 10, 8)
    if err != nil || n > uint64(model.OrderRefunded) {
        return nil, false
    }
    st := model.OrderStatus(n)
    return &st, true
}

// Stats handles GET /v1/orders/stats.
func (h *OrderHandler) Stats(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    s, err := h.orders.Stats(c.Request().Context(), uid)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, s)
}

// Get handles GET /v1/orders/:id.
func (h *OrderHandler) Get(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    id, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, "invalid order id")
    }
    o, err := h.orders.Get(c.Request().Context(), uid, id)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, o)
}

// Pay handles POST /v1/orders/:id/pay.
func (h *OrderHandler) Pay(c echo.Context) error {
    return h.settle(c, h.orders.Pay, "paid")
}

// Cancel handles POST /v1/orders/:id/cancel.
func (h *OrderHandler) Cancel(c echo.Context) error {
    return h.settle(c, h.orders.Cancel, "cancelled")
}

func (h *OrderHandler) settle(c echo.Context, op func(ctx context.Context, userID, orderID uint64) error, status string) error {
    uid, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    id, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, "invalid order id")
    }
    if err := op(c.Request().Context(), uid, id); err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"id": id, "status": status})
}
