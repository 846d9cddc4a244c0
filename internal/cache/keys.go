package cache

import "fmt"

// Key namespace of the reservation store.  All keys are colon-delimited.
const (
	ListKey = "goods:list"
)

// StockKey is the per-activity reservation counter.
func StockKey(activityID uint64) string { return fmt.Sprintf("stock:%d", activityID) }

// MarkerKey is the per-(user, activity) purchase marker.
func MarkerKey(userID, activityID uint64) string {
	return fmt.Sprintf("order:%d:%d", userID, activityID)
}

// ResultKey is the per-(user, activity) async outcome slot.
func ResultKey(userID, activityID uint64) string {
	return fmt.Sprintf("result:%d:%d", userID, activityID)
}

// PathKey holds the one-time purchase path token.
func PathKey(userID, activityID uint64) string {
	return fmt.Sprintf("path:%d:%d", userID, activityID)
}

// CaptchaKey holds the expected captcha answer.
func CaptchaKey(userID, activityID uint64) string {
	return fmt.Sprintf("captcha:%d:%d", userID, activityID)
}

// DetailKey is the cached catalog entry of one activity.
func DetailKey(activityID uint64) string { return fmt.Sprintf("goods:detail:%d", activityID) }

// RateKey is the fixed-window counter of (route, identity).
func RateKey(prefix, route, identity string) string {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return fmt.Sprintf("%s:%s:%s", prefix, route, identity)
}
