package auction

import (
	"auctionhouse/model"
)

// ErrRes is the error envelope. Reason carries the typed rejection for
// client errors; min_bid is set for BelowMinimum rejections and retry_after
// (seconds) for rate limiting.
type ErrRes struct {
	ErrStr     string `json:"err_str"`
	Reason     string `json:"reason,omitempty"`
	MinBid     string `json:"min_bid,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

// PlaceBidReq is the bid placement body. The bidder identity comes from the
// authenticated session, never from this payload.
type PlaceBidReq struct {
	AuctionID string `json:"auction_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"` // integer minor units (wei)
}

// PlaceBidRes returns the persisted bid, the updated auction summary and
// whether an anti-snipe extension was applied.
type PlaceBidRes struct {
	Bid      *model.Bid     `json:"bid"`
	Auction  *model.Auction `json:"auction"`
	Extended bool           `json:"extended"`
}

// AuctionRes is the reconciled auction detail. stale is true when the chain
// was unreachable and the last-known-good mirror is served.
type AuctionRes struct {
	Auction *model.Auction `json:"auction"`
	Bids    []model.Bid    `json:"bids"`
	Stale   bool           `json:"stale"`
}

// PageRes is the auction paging envelope.
type PageRes struct {
	Total    int64           `json:"total"`
	Auctions []model.Auction `json:"auctions"`
}

// ActivityRes is the activity paging envelope.
type ActivityRes struct {
	Total      int64                   `json:"total"`
	Activities []model.AuctionActivity `json:"activities"`
}

// CreateAuctionReq creates a draft auction. Amounts are integer minor units;
// chain_index links a chain-backed auction to its contract slot.
type CreateAuctionReq struct {
	StartingBid  string  `json:"starting_bid" binding:"required"`
	BidIncrement string  `json:"bid_increment" binding:"required"`
	StartTime    int64   `json:"start_time" binding:"required"`
	EndTime      int64   `json:"end_time" binding:"required"`
	ChainIndex   *uint64 `json:"chain_index,omitempty"`
}
