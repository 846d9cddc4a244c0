package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/seckill/internal/model"
    "github.com/iliyamo/seckill/internal/service"
)

// Admin is the administrative surface of the reservation store.
type Admin interface {
    ResetStock(ctx context.Context, id uint64, stock int64) error
    Delete(ctx context.Context, id uint64) error
    Dashboard(ctx context.Context) (*service.Dashboard, error)
    Orders(ctx context.Context, status *model.OrderStatus) ([]model.Order, error)
}

// AdminHandler serves the ADMIN-only endpoints.
type AdminHandler struct {
    admin Admin
    log   *zap.Logger
}

func NewAdminHandler(admin Admin, log *zap.Logger) *AdminHandler {
    return &AdminHandler{admin: admin, log: nopIfNil(log)}
}

type resetStockRequest struct {
    Stock *int64 `json:"stock"`
}

// Dashboard handles GET /v1/admin/dashboard.
func (h *AdminHandler) Dashboard(c echo.Context) error {
    d, err := h.admin.Dashboard(c.Request().Context())
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, d)
}

// Orders handles GET /v1/admin/orders with an optional ?status= filter.
func (h *AdminHandler) Orders(c echo.Context) error {
    status, ok := statusFilter(c)
    if !ok {
        return badRequest(c, "invalid status")
    }
    items, err := h.admin.Orders(c.Request().Context(), status)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ResetStock handles PUT /v1/admin/activities/:id/stock with {"stock": n}.
func (h *AdminHandler) ResetStock(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, "invalid activity id")
    }
    var req resetStockRequest
    if err := c.Bind(&req); err != nil || req.Stock == nil || *req.Stock < 0 {
        return badRequest(c, "stock must be a non-negative integer")
    }
    if err := h.admin.ResetStock(c.Request().Context(), id, *req.Stock); err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"id": id, "stock": *req.Stock})
}

// Delete handles DELETE /v1/admin/activities/:id.
func (h *AdminHandler) Delete(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, "invalid activity id")
    }
    if err := h.admin.Delete(c.Request().Context(), id); err != nil {
        return writeError(c, h.log, err)
    }
    return c.NoContent(http.StatusNoContent)
}
