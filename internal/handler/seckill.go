package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/seckill/internal/model"
    "github.com/iliyamo/seckill/internal/seckill"
)

// Captchas issues arithmetic captcha challenges.
type Captchas interface {
    Issue(ctx context.Context, userID, activityID uint64) (*seckill.Challenge, error)
}

// Paths issues one-time purchase paths.
type Paths interface {
    Issue(ctx context.Context, userID, activityID uint64, captchaAnswer int) (string, error)
}

// Purchaser runs the reservation engine.
type Purchaser interface {
    Execute(ctx context.Context, userID, activityID uint64, pathToken string) error
    Result(ctx context.Context, userID, activityID uint64) (seckill.Outcome, error)
}

// ActivityLookup resolves an activity, reporting seckill.ErrActivityNotFound
// for unknown ids.
type ActivityLookup interface {
    Activity(ctx context.Context, id uint64) (*model.Activity, error)
}

// SeckillHandler serves the admission pipeline: captcha, path, purchase and
// result polling.
type SeckillHandler struct {
    captchas   Captchas
    paths      Paths
    engine     Purchaser
    activities ActivityLookup
    log        *zap.Logger
}

// NewSeckillHandler wires a SeckillHandler.
func NewSeckillHandler(captchas Captchas, paths Paths, engine Purchaser, activities ActivityLookup, log *zap.Logger) *SeckillHandler {
    if captchas == nil || paths == nil || engine == nil || activities == nil {
        panic("nil dependency passed to NewSeckillHandler")
    }
    return &SeckillHandler{captchas: captchas, paths: paths, engine: engine, activities: activities, log: nopIfNil(log)}
}

// Captcha handles GET /v1/seckill/captcha/:id.
func (h *SeckillHandler) Captcha(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    aid, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, "invalid activity id")
    }
    ctx := c.Request().Context()
    if _, err := h.activities.Activity(ctx, aid); err != nil {
        return writeError(c, h.log, err)
    }
    ch, err := h.captchas.Issue(ctx, uid, aid)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, ch)
}

// Path handles GET /v1/seckill/path/:id?captcha=N.  A missing or
// non-numeric answer is a captcha error.
func (h *SeckillHandler) Path(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    aid, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, "invalid activity id")
    }
    answer, err := strconv.Atoi(strings.TrimSpace(c.QueryParam("captcha")))
    if err != nil {
        return writeCode(c, seckill.CodeCaptcha)
    }
    token, err := h.paths.Issue(c.Request().Context(), uid, aid, answer)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"path": token})
}

// Do handles POST /v1/seckill/:path/do/:id.  An accepted reservation is
// answered with the queuing code; the client then polls Result.
func (h *SeckillHandler) Do(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    aid, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, "invalid activity id")
    }
    if err := h.engine.Execute(c.Request().Context(), uid, aid, c.Param("path")); err != nil {
        return writeError(c, h.log, err)
    }
    code := seckill.CodeQueuing
    return c.JSON(code.HTTPStatus(), echo.Map{"code": int(code), "message": code.Message()})
}

// Result handles GET /v1/seckill/result/:id.
func (h *SeckillHandler) Result(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    aid, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, "invalid activity id")
    }
    out, err := h.engine.Result(c.Request().Context(), uid, aid)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, out)
}
