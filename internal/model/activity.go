package model

import "time"

// ActivityStatus is the publication state stored on seckill_activities.status.
type ActivityStatus uint8

const (
    ActivityUnpublished ActivityStatus = 0 // created but not yet released
    ActivityActive      ActivityStatus = 1 // inside (or due for) its sale window
    ActivityEnded       ActivityStatus = 2 // window closed
)

// Activity represents one flash-sale instance of a good as stored in the
// `seckill_activities` table joined with its `goods` row.  Prices are in
// cents.  The sale price is expected to be lower than the regular price
// but nothing enforces it.
//
// Fields:
//  ID           – primary key of the activity.
//  GoodsID      – referenced good.
//  GoodsName    – display name of the good.
//  GoodsTitle   – short marketing title.
//  GoodsImg     – image URL.
//  GoodsDetail  – long description.
//  GoodsPrice   – regular price in cents.
//  GoodsOnSale  – the good's own on/off-sale switch.
//  SalePrice    – flash-sale price in cents.
//  StockCount   – persisted remaining stock.
//  StartAt      – start of the sale window (UTC).
//  EndAt        – end of the sale window (UTC).
//  Status       – publication state.
type Activity struct {
    ID          uint64         `json:"id"`
    GoodsID     uint64         `json:"goods_id"`
    GoodsName   string         `json:"goods_name"`
    GoodsTitle  string         `json:"goods_title"`
    GoodsImg    string         `json:"goods_img"`
    GoodsDetail string         `json:"goods_detail"`
    GoodsPrice  int64          `json:"goods_price_cents"`
    GoodsOnSale bool           `json:"goods_on_sale"`
    SalePrice   int64          `json:"sale_price_cents"`
    StockCount  int64          `json:"stock_count"`
    StartAt     time.Time      `json:"start_at"`
    EndAt       time.Time      `json:"end_at"`
    Status      ActivityStatus `json:"status"`
}

// InWindow reports whether now lies within [StartAt, EndAt].
func (a *Activity) InWindow(now time.Time) bool {
    return !now.Before(a.StartAt) && !now.After(a.EndAt)
}

// Purchasable reports whether a reservation may currently succeed for the
// activity: published, the good on sale and the window open.
func (a *Activity) Purchasable(now time.Time) bool {
    return a.Status == ActivityActive && a.GoodsOnSale && a.InWindow(now)
}

// Phase is the status shown to shoppers, derived from the clock rather
// than the stored status column.
type Phase uint8

const (
    PhaseNotStarted Phase = 0
    PhaseOngoing    Phase = 1
    PhaseEnded      Phase = 2
)

// ActivityView is the cached catalog representation of an activity.
// RemainSeconds is positive before the start, zero while running and -1
// once ended.
type ActivityView struct {
    Activity
    Phase         Phase `json:"seckill_status"`
    RemainSeconds int64 `json:"remain_seconds"`
}

// NewActivityView computes the shopper-facing phase of a at now.
func NewActivityView(a Activity, now time.Time) ActivityView {
    v := ActivityView{Activity: a}
    switch {
    case now.Before(a.StartAt):
        v.Phase = PhaseNotStarted
        v.RemainSeconds = int64(a.StartAt.Sub(now) / time.Second)
    case now.After(a.EndAt):
        v.Phase = PhaseEnded
        v.RemainSeconds = -1
    default:
        v.Phase = PhaseOngoing
    }
    return v
}
