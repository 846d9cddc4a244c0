// Package repository defines the persistence layer of the flash-sale core
// and the sentinel errors it shares with higher layers.  Handlers and
// services use errors.Is against these values to distinguish between
// missing rows, lost stock races and duplicate purchases.
package repository

import (
    "errors"

    "github.com/go-sql-driver/mysql"
)

// ErrActivityNotFound is returned when an activity does not exist or has
// been soft-deleted.
var ErrActivityNotFound = errors.New("activity not found")

// ErrOrderNotFound is returned when an order does not exist or does not
// belong to the requesting user.
var ErrOrderNotFound = errors.New("order not found")

// ErrStockExhausted is returned when the conditional stock decrement
// affected no rows.
var ErrStockExhausted = errors.New("stock exhausted")

// ErrDuplicateOrder is returned when a duplicate-guard row already exists
// for the (user, activity) pair.
var ErrDuplicateOrder = errors.New("duplicate order")

// isDuplicateKey reports whether err is a MySQL unique-key violation (1062).
func isDuplicateKey(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == 1062
}
