package seckill

import "sync"

// SoldOut is the per-process short-circuit cache of activities observed to
// be sold out.  It is an optimization only: a set flag skips a store round
// trip, a missing flag never admits anyone by itself.
type SoldOut struct {
	flags sync.Map // activity id -> struct{}
}

// NewSoldOut returns an empty flag set.
func NewSoldOut() *SoldOut { return &SoldOut{} }

// Mark records that activityID returned stock-empty.
func (s *SoldOut) Mark(activityID uint64) { s.flags.Store(activityID, struct{}{}) }

// Clear forgets the flag once stock may have been replenished.
func (s *SoldOut) Clear(activityID uint64) { s.flags.Delete(activityID) }

// IsSet reports whether activityID is flagged.
func (s *SoldOut) IsSet(activityID uint64) bool {
	_, ok := s.flags.Load(activityID)
	return ok
}
