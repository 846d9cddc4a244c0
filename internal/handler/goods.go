package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/seckill/internal/model"
)

// Catalog lists flash-sale activities.
type Catalog interface {
    List(ctx context.Context) ([]model.ActivityView, error)
    Detail(ctx context.Context, id uint64) (*model.ActivityView, error)
}

// GoodsHandler serves the public catalog.
type GoodsHandler struct {
    catalog Catalog
    log     *zap.Logger
}

func NewGoodsHandler(catalog Catalog, log *zap.Logger) *GoodsHandler {
    return &GoodsHandler{catalog: catalog, log: nopIfNil(log)}
}

// List handles GET /v1/goods.  Response JSON contains an "items" array.
func (h *GoodsHandler) List(c echo.Context) error {
    items, err := h.catalog.List(c.Request().Context())
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Detail handles GET /v1/goods/:id.
func (h *GoodsHandler) Detail(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, "invalid activity id")
    }
    v, err := h.catalog.Detail(c.Request().Context(), id)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, v)
}
