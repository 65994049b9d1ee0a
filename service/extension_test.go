package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auctionhouse/model"
)

func TestExtensionPolicy_Apply(t *testing.T) {
	policy := ExtensionPolicy{
		Window:        2 * time.Minute,
		Increment:     2 * time.Minute,
		MaxExtensions: 3,
	}
	end := int64(10000)

	tests := []struct {
		name        string
		bidTime     int64
		applied     int64
		wantEnd     int64
		wantApplied bool
	}{
		{
			name:    "early_bid_no_extension",
			bidTime: end - 600,
			wantEnd: end,
		},
		{
			name:        "bid_one_minute_before_end_extends_from_bid_time",
			bidTime:     end - 60,
			wantEnd:     end - 60 + 120,
			wantApplied: true,
		},
		{
			// At the window edge the recomputed deadline equals the current
			// one, so nothing moves and nothing is counted.
			name:    "bid_exactly_at_window_edge",
			bidTime: end - 120,
			wantEnd: end,
		},
		{
			name:    "cap_reached_bid_still_accepted_but_no_extension",
			bidTime: end - 60,
			applied: 3,
			wantEnd: end,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &model.Auction{EndTime: end, TimeExtensionsApplied: tt.applied}
			newEnd, applied := policy.Apply(a, time.Unix(tt.bidTime, 0))
			require.Equal(t, tt.wantApplied, applied)
			require.Equal(t, tt.wantEnd, newEnd)
		})
	}
}

// The end time never moves backward, even when the computed deadline would
// land before the current one.
func TestExtensionPolicy_NeverBackward(t *testing.T) {
	policy := ExtensionPolicy{
		Window:        10 * time.Minute,
		Increment:     time.Minute,
		MaxExtensions: 10,
	}
	a := &model.Auction{EndTime: 10000}

	// Inside the window but bidTime+increment is before the deadline.
	newEnd, applied := policy.Apply(a, time.Unix(9500, 0))
	require.False(t, applied)
	require.Equal(t, int64(10000), newEnd)
}

// Back-to-back late bids keep pushing the deadline until the cap.
func TestExtensionPolicy_BackToBackLateBids(t *testing.T) {
	policy := ExtensionPolicy{
		Window:        2 * time.Minute,
		Increment:     2 * time.Minute,
		MaxExtensions: 2,
	}
	a := &model.Auction{EndTime: 10000}

	bid := int64(9950)
	for i := int64(1); i <= 3; i++ {
		newEnd, applied := policy.Apply(a, time.Unix(bid, 0))
		if i <= policy.MaxExtensions {
			require.True(t, applied, "extension %d", i)
			require.Equal(t, bid+120, newEnd)
			require.Greater(t, newEnd, a.EndTime)
			a.EndTime = newEnd
			a.TimeExtensionsApplied++
		} else {
			require.False(t, applied)
			require.Equal(t, a.EndTime, newEnd)
		}
		bid = a.EndTime - 30
	}
	require.Equal(t, policy.MaxExtensions, a.TimeExtensionsApplied)
}
