package service

import (
	"time"

	"auctionhouse/model"
)

// ExtensionPolicy decides whether a high bid arriving near the deadline
// pushes the auction end time out (anti-snipe). MaxExtensions bounds
// griefing: once the cap is reached late bids are still accepted but no
// longer extend time, otherwise an auction could never end.
type ExtensionPolicy struct {
	Window        time.Duration // how close to the deadline a bid must land
	Increment     time.Duration // new deadline distance, measured from the bid
	MaxExtensions int64
}

// Apply returns the new end time and whether an extension was applied. The
// deadline is measured from bidTime rather than added to the old end time,
// so back-to-back late bids keep pushing it. The end time never moves
// backward. Pure: the caller persists the change and bumps the counter.
func (p ExtensionPolicy) Apply(a *model.Auction, bidTime time.Time) (int64, bool) {
	if a.TimeExtensionsApplied >= p.MaxExtensions {
		return a.EndTime, false
	}
	bid := bidTime.Unix()
	if a.EndTime-bid > int64(p.Window/time.Second) {
		return a.EndTime, false
	}
	newEnd := bid + int64(p.Increment/time.Second)
	if newEnd <= a.EndTime {
		return a.EndTime, false
	}
	return newEnd, true
}
