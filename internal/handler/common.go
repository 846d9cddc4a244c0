// Package handler exposes the HTTP handlers of the flash-sale API.  Handlers
// only translate between HTTP and the service layer; every domain rejection
// is rendered as {"code": n, "error": msg} with the status its code maps to.
package handler

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/seckill/internal/middleware"
    "github.com/iliyamo/seckill/internal/seckill"
)

var errBadID = errors.New("invalid id")

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, errBadID
    }
    return id, nil
}

// getUserID returns the authenticated caller or an error when JWTAuth did
// not run.
func getUserID(c echo.Context) (uint64, error) {
    id, ok := middleware.UserID(c)
    if !ok {
        return 0, errors.New("invalid user_id in context")
    }
    return id, nil
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func unauthorized(c echo.Context) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// writeCode renders a domain code with its mapped HTTP status.
func writeCode(c echo.Context, code seckill.Code) error {
    return c.JSON(code.HTTPStatus(), echo.Map{"code": int(code), "error": code.Message()})
}

// writeError renders err.  Domain rejections keep their code; anything else
// is logged and reported as an internal error.
func writeError(c echo.Context, log *zap.Logger, err error) error {
    if code, ok := seckill.CodeOf(err); ok {
        if code == seckill.CodeBusy {
            log.Warn("request failed on infrastructure", zap.String("path", c.Path()), zap.Error(err))
        }
        return writeCode(c, code)
    }
    log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
    return c.JSON(http.StatusInternalServerError, echo.Map{"code": int(seckill.CodeBusy), "error": "internal error"})
}

func nopIfNil(log *zap.Logger) *zap.Logger {
    if log == nil {
        return zap.NewNop()
    }
    return log
}
