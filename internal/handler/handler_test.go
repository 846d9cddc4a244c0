package handler

import (
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "strconv"
    "strings"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/seckill/internal/middleware"
    "github.com/iliyamo/seckill/internal/model"
    "github.com/iliyamo/seckill/internal/seckill"
    "github.com/iliyamo/seckill/internal/service"
    "github.com/iliyamo/seckill/internal/utils"
)

const secret = "handler-secret"

type stubCaptchas struct{ issued []uint64 }

func (s *stubCaptchas) Issue(_ context.Context, _, aid uint64) (*seckill.Challenge, error) {
    s.issued = append(s.issued, aid)
    return &seckill.Challenge{Image: "data:image/png;base64,AAAA"}, nil
}

type stubPaths struct{}

func (stubPaths) Issue(_ context.Context, _, _ uint64, answer int) (string, error) {
    if answer != 12 {
        return "", seckill.ErrCaptcha
    }
    return "deadbeef", nil
}

type stubEngine struct {
    err     error
    outcome seckill.Outcome
    gotPath string
    gotUser uint64
}

func (s *stubEngine) Execute(_ context.Context, uid, _ uint64, token string) error {
    s.gotUser, s.gotPath = uid, token
    return s.err
}

func (s *stubEngine) Result(context.Context, uint64, uint64) (seckill.Outcome, error) {
    return s.outcome, s.err
}

type stubActivities struct{}

func (stubActivities) Activity(_ context.Context, id uint64) (*model.Activity, error) {
    if id != 1 {
        return nil, seckill.ErrActivityNotFound
    }
    return &model.Activity{ID: 1}, nil
}

type stubOrders struct {
    payErr    error
    cancelErr error
    status    *model.OrderStatus
}

func (s *stubOrders) List(_ context.Context, _ uint64, status *model.OrderStatus) ([]model.Order, error) {
    s.status = status
    return []model.Order{{ID: 5}}, nil
}

func (s *stubOrders) Get(_ context.Context, _, id uint64) (*model.Order, error) {
    if id != 5 {
        return nil, seckill.ErrOrderNotFound
    }
    return &model.Order{ID: 5}, nil
}

func (s *stubOrders) Stats(context.Context, uint64) (model.OrderStats, error) {
    return model.OrderStats{Total: 1, Unpaid: 1}, nil
}

func (s *stubOrders) Pay(context.Context, uint64, uint64) error    { return s.payErr }
func (s *stubOrders) Cancel(context.Context, uint64, uint64) error { return s.cancelErr }

type stubAdmin struct {
    reset  int64
    status *model.OrderStatus
}

func (s *stubAdmin) ResetStock(_ context.Context, id uint64, stock int64) error {
    if id != 1 {
        return seckill.ErrActivityNotFound
    }
    s.reset = stock
    return nil
}

func (s *stubAdmin) Delete(context.Context, uint64) error { return nil }

func (s *stubAdmin) Dashboard(context.Context) (*service.Dashboard, error) {
    return &service.Dashboard{Orders: map[string]int64{"PAID": 2}}, nil
}

func (s *stubAdmin) Orders(_ context.Context, status *model.OrderStatus) ([]model.Order, error) {
    s.status = status
    return []model.Order{{ID: 9, UserID: 12}, {ID: 4, UserID: 11}}, nil
}

func do(t *testing.T, e *echo.Echo, method, target, body, role string) *httptest.ResponseRecorder {
    t.Helper()
    var req *http.Request
    if body != "" {
        req = httptest.NewRequest(method, target, strings.NewReader(body))
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    } else {
        req = httptest.NewRequest(method, target, nil)
    }
    if role != "" {
        tok, err := utils.NewAccessToken(secret, 9, role, 5)
        require.NoError(t, err)
        req.Header.Set("Authorization", "Bearer "+tok.Token)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func seckillServer(engine *stubEngine) (*echo.Echo, *stubCaptchas) {
    captchas := &stubCaptchas{}
    h := NewSeckillHandler(captchas, stubPaths{}, engine, stubActivities{}, nil)
    e := echo.New()
    g := e.Group("/v1/seckill", middleware.JWTAuth(secret))
    g.GET("/captcha/:id", h.Captcha)
    g.GET("/path/:id", h.Path)
    g.POST("/:path/do/:id", h.Do)
    g.GET("/result/:id", h.Result)
    return e, captchas
}

func TestSeckillHandler_Captcha(t *testing.T) {
    e, captchas := seckillServer(&stubEngine{})

    rec := do(t, e, http.MethodGet, "/v1/seckill/captcha/1", "", "USER")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"captcha_image":"data:image/png;base64,AAAA"}`, rec.Body.String())

    rec = do(t, e, http.MethodGet, "/v1/seckill/captcha/2", "", "USER")
    assert.Equal(t, http.StatusNotFound, rec.Code)
    assert.JSONEq(t, `{"code":2001,"error":"activity not found"}`, rec.Body.String())
    assert.Equal(t, []uint64{1}, captchas.issued)

    assert.Equal(t, http.StatusUnauthorized, do(t, e, http.MethodGet, "/v1/seckill/captcha/1", "", "").Code)
    assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodGet, "/v1/seckill/captcha/x", "", "USER").Code)
}

func TestSeckillHandler_Path(t *testing.T) {
    e, _ := seckillServer(&stubEngine{})

    rec := do(t, e, http.MethodGet, "/v1/seckill/path/1?captcha=12", "", "USER")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"path":"deadbeef"}`, rec.Body.String())

    for _, q := range []string{"?captcha=13", "?captcha=abc", ""} {
        rec = do(t, e, http.MethodGet, "/v1/seckill/path/1"+q, "", "USER")
        assert.Equal(t, http.StatusBadRequest, rec.Code, q)
        assert.Contains(t, rec.Body.String(), `"code":3007`, q)
    }
}

func TestSeckillHandler_Do(t *testing.T) {
    tests := []struct {
        name   string
        err    error
        status int
        code   int
    }{
        {"queued", nil, http.StatusAccepted, 3008},
        {"repeat", seckill.ErrRepeat, http.StatusConflict, 3003},
        {"sold out", seckill.ErrSoldOut, http.StatusConflict, 3004},
        {"path", seckill.ErrPathInvalid, http.StatusBadRequest, 3006},
        {"not started", seckill.ErrNotStarted, http.StatusForbidden, 3001},
        {"busy", seckill.Busy(errors.New("amqp down")), http.StatusServiceUnavailable, 500},
        {"unexpected", errors.New("boom"), http.StatusInternalServerError, 500},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            engine := &stubEngine{err: tt.err}
            e, _ := seckillServer(engine)
            rec := do(t, e, http.MethodPost, "/v1/seckill/abc123/do/1", "", "USER")
            assert.Equal(t, tt.status, rec.Code)
            assert.Contains(t, rec.Body.String(), `"code":`+itoa(tt.code))
            assert.Equal(t, "abc123", engine.gotPath)
            assert.Equal(t, uint64(9), engine.gotUser)
        })
    }
}

func TestSeckillHandler_Result(t *testing.T) {
    e, _ := seckillServer(&stubEngine{outcome: seckill.Outcome{Status: seckill.ResultSuccess, OrderID: 77}})
    rec := do(t, e, http.MethodGet, "/v1/seckill/result/1", "", "USER")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"status":"success","order_id":77}`, rec.Body.String())
}

func TestOrderHandler(t *testing.T) {
    orders := &stubOrders{}
    h := NewOrderHandler(orders, nil)
    e := echo.New()
    g := e.Group("/v1/orders", middleware.JWTAuth(secret))
    g.GET("", h.List)
    g.GET("/stats", h.Stats)
    g.GET("/:id", h.Get)
    g.POST("/:id/pay", h.Pay)
    g.POST("/:id/cancel", h.Cancel)

    rec := do(t, e, http.MethodGet, "/v1/orders?status=0", "", "USER")
    assert.Equal(t, http.StatusOK, rec.Code)
    require.NotNil(t, orders.status)
    assert.Equal(t, model.OrderUnpaid, *orders.status)
    assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodGet, "/v1/orders?status=9", "", "USER").Code)

    rec = do(t, e, http.MethodGet, "/v1/orders/stats", "", "USER")
    assert.JSONEq(t, `{"total":1,"unpaid":1,"paid":0,"cancelled":0}`, rec.Body.String())

    assert.Equal(t, http.StatusOK, do(t, e, http.MethodGet, "/v1/orders/5", "", "USER").Code)
    rec = do(t, e, http.MethodGet, "/v1/orders/6", "", "USER")
    assert.Equal(t, http.StatusNotFound, rec.Code)
    assert.Contains(t, rec.Body.String(), `"code":4001`)

    rec = do(t, e, http.MethodPost, "/v1/orders/5/pay", "", "USER")
    assert.JSONEq(t, `{"id":5,"status":"paid"}`, rec.Body.String())
    orders.cancelErr = seckill.ErrOrderNotUnpaid
    rec = do(t, e, http.MethodPost, "/v1/orders/5/cancel", "", "USER")
    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.Contains(t, rec.Body.String(), `"code":4002`)
}

func TestAdminHandler(t *testing.T) {
    admin := &stubAdmin{}
    h := NewAdminHandler(admin, nil)
    e := echo.New()
    g := e.Group("/v1/admin", middleware.JWTAuth(secret), middleware.RequireRole("ADMIN"))
    g.GET("/dashboard", h.Dashboard)
    g.PUT("/activities/:id/stock", h.ResetStock)
    g.DELETE("/activities/:id", h.Delete)
    g.GET("/orders", h.Orders)

    assert.Equal(t, http.StatusForbidden, do(t, e, http.MethodGet, "/v1/admin/dashboard", "", "USER").Code)
    rec := do(t, e, http.MethodGet, "/v1/admin/dashboard", "", "ADMIN")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), `"PAID":2`)

    rec = do(t, e, http.MethodPut, "/v1/admin/activities/1/stock", `{"stock":40}`, "ADMIN")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, int64(40), admin.reset)
    assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodPut, "/v1/admin/activities/1/stock", `{"stock":-1}`, "ADMIN").Code)
    assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodPut, "/v1/admin/activities/1/stock", `{}`, "ADMIN").Code)
    assert.Equal(t, http.StatusNotFound, do(t, e, http.MethodPut, "/v1/admin/activities/2/stock", `{"stock":1}`, "ADMIN").Code)

    assert.Equal(t, http.StatusNoContent, do(t, e, http.MethodDelete, "/v1/admin/activities/1", "", "ADMIN").Code)

    assert.Equal(t, http.StatusForbidden, do(t, e, http.MethodGet, "/v1/admin/orders", "", "USER").Code)
    rec = do(t, e, http.MethodGet, "/v1/admin/orders?status=1", "", "ADMIN")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), `"user_id":12`)
    require.NotNil(t, admin.status)
    assert.Equal(t, model.OrderPaid, *admin.status)

    rec = do(t, e, http.MethodGet, "/v1/admin/orders", "", "ADMIN")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Nil(t, admin.status)
    assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodGet, "/v1/admin/orders?status=9", "", "ADMIN").Code)
}

func TestReady(t *testing.T) {
    e := echo.New()
    e.GET("/readyz", Ready(map[string]Pinger{
        "redis": func(context.Context) error { return nil },
        "mysql": func(context.Context) error { return errors.New("refused") },
    }))
    rec := do(t, e, http.MethodGet, "/readyz", "", "")
    assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
    assert.JSONEq(t, `{"status":"unavailable","failed":{"mysql":"refused"}}`, rec.Body.String())
}

func itoa(n int) string { return strconv.Itoa(n) }
