package auction

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"auctionhouse/log"
	"auctionhouse/middleware"
	"auctionhouse/model"
	"auctionhouse/service"
)

type handler struct {
	svc *service.AuctionService
}

// Routers mounts the auction endpoints. Write operations sit behind the
// injected auth middleware.
func Routers(e *gin.Engine, svc *service.AuctionService, auth gin.HandlerFunc) {
	h := &handler{svc: svc}
	e.GET("/auction/page", h.pageAuctions)
	e.GET("/auction/get", h.getAuction)
	e.GET("/auction/activities", h.activities)
	e.POST("/auction/bid", auth, h.placeBid)
	e.POST("/auction/create", auth, h.createAuction)
	e.POST("/auction/settle", auth, h.settleAuction)
	e.POST("/auction/cancel", auth, h.cancelAuction)
}

// @Tags  auction
// @Summary place a bid
// @Description Validates and records a bid on an auction; may extend the deadline near the end
// @Accept json
// @Produce json
// @Param body body PlaceBidReq true "bid"
// @Success 200 {object} PlaceBidRes
// @Failure 400 {object} ErrRes
// @Router /auction/bid [post]
func (h *handler) placeBid(c *gin.Context) {
	var req PlaceBidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrRes{ErrStr: err.Error()})
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() < 0 {
		c.JSON(http.StatusBadRequest, ErrRes{ErrStr: "amount must be a non-negative integer in minor units"})
		return
	}
	caller, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrRes{ErrStr: "missing identity"})
		return
	}

	out, err := h.svc.PlaceBid(c.Request.Context(), service.PlaceBidInput{
		AuctionID: req.AuctionID,
		BidderID:  caller.UserID,
		Amount:    amount,
		ClientIP:  c.ClientIP(),
	})
	setRateLimitHeaders(c, out)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, PlaceBidRes{Bid: out.Bid, Auction: out.Auction, Extended: out.Extended})
}

// @Tags  auction
// @Summary query one auction
// @Description Returns the auction with its bid history; chain-backed auctions are reconciled against the contract
// @Produce json
// @Param id query string true "auction id"
// @Success 200 {object} AuctionRes
// @Failure 400 {object} ErrRes
// @Router /auction/get [get]
func (h *handler) getAuction(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrRes{ErrStr: "missing auction id"})
		return
	}
	detail, err := h.svc.GetAuction(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AuctionRes{Auction: detail.Auction, Bids: detail.Bids, Stale: detail.Stale})
}

// @Tags  auction
// @Summary query auction list
// @Description Returns one page of auctions, newest first
// @Produce json
// @Param page query string false "page, default 1"
// @Param page_size query string false "page size, default 10"
// @Success 200 {object} PageRes
// @Failure 400 {object} ErrRes
// @Router /auction/page [get]
func (h *handler) pageAuctions(c *gin.Context) {
	page, size := pageArgs(c)
	auctions, total, err := h.svc.ListAuctions(c.Request.Context(), page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, PageRes{Total: total, Auctions: auctions})
}

// @Tags  auction
// @Summary query auction activity
// @Description Returns the append-only audit history of an auction
// @Produce json
// @Param id query string true "auction id"
// @Param page query string false "page, default 1"
// @Param page_size query string false "page size, default 10"
// @Success 200 {object} ActivityRes
// @Failure 400 {object} ErrRes
// @Router /auction/activities [get]
func (h *handler) activities(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrRes{ErrStr: "missing auction id"})
		return
	}
	page, size := pageArgs(c)
	acts, total, err := h.svc.Activities(c.Request.Context(), id, page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ActivityRes{Total: total, Activities: acts})
}

// @Tags  auction
// @Summary create an auction
// @Accept json
// @Produce json
// @Param body body CreateAuctionReq true "auction"
// @Success 200 {object} model.Auction
// @Failure 400 {object} ErrRes
// @Router /auction/create [post]
func (h *handler) createAuction(c *gin.Context) {
	var req CreateAuctionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrRes{ErrStr: err.Error()})
		return
	}
	caller, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrRes{ErrStr: "missing identity"})
		return
	}
	starting, ok1 := new(big.Int).SetString(req.StartingBid, 10)
	increment, ok2 := new(big.Int).SetString(req.BidIncrement, 10)
	if !ok1 || !ok2 {
		c.JSON(http.StatusBadRequest, ErrRes{ErrStr: "amounts must be integers in minor units"})
		return
	}
	a, err := h.svc.CreateAuction(c.Request.Context(), service.CreateAuctionInput{
		CreatedBy:    caller.UserID,
		StartingBid:  starting,
		BidIncrement: increment,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		ChainIndex:   req.ChainIndex,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Tags  auction
// @Summary settle an ended auction
// @Produce json
// @Param id query string true "auction id"
// @Success 200 {object} model.Auction
// @Failure 400 {object} ErrRes
// @Router /auction/settle [post]
func (h *handler) settleAuction(c *gin.Context) {
	h.terminalAction(c, h.svc.SettleAuction)
}

// @Tags  auction
// @Summary cancel an auction without bids
// @Produce json
// @Param id query string true "auction id"
// @Success 200 {object} model.Auction
// @Failure 400 {object} ErrRes
// @Router /auction/cancel [post]
func (h *handler) cancelAuction(c *gin.Context) {
	h.terminalAction(c, h.svc.CancelAuction)
}

func (h *handler) terminalAction(c *gin.Context, action func(ctx context.Context, id, callerID, role string) (*model.Auction, error)) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrRes{ErrStr: "missing auction id"})
		return
	}
	caller, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrRes{ErrStr: "missing identity"})
		return
	}
	a, err := action(c.Request.Context(), id, caller.UserID, caller.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func pageArgs(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 10
	}
	return page, size
}

// setRateLimitHeaders mirrors the limiter decision onto the response.
func setRateLimitHeaders(c *gin.Context, out *service.PlaceBidOutput) {
	if out == nil || out.RateLimit.Limit == 0 {
		return
	}
	rl := out.RateLimit
	c.Header("X-RateLimit-Limit", strconv.FormatInt(rl.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(rl.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(rl.ResetAt.Unix(), 10))
	if !rl.Allowed {
		c.Header("Retry-After", strconv.FormatInt(int64(rl.RetryAfter.Seconds()+0.999), 10))
	}
}

// writeError maps the typed error taxonomy onto HTTP statuses. No substring
// matching: every branch is a type or sentinel check.
func writeError(c *gin.Context, err error) {
	var rej *service.Rejection
	if errors.As(err, &rej) {
		res := ErrRes{ErrStr: rej.Message, Reason: string(rej.Reason)}
		if rej.MinimumBid != nil {
			res.MinBid = rej.MinimumBid.Text(10)
		}
		status := http.StatusBadRequest
		if rej.Reason == service.ReasonNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, res)
		return
	}
	var limited *service.RateLimitedError
	if errors.As(err, &limited) {
		c.JSON(http.StatusTooManyRequests, ErrRes{
			ErrStr:     "too many bid requests",
			Reason:     "RateLimited",
			RetryAfter: int64(limited.RetryAfter.Seconds() + 0.999),
		})
		return
	}
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrRes{ErrStr: "auction not found", Reason: string(service.ReasonNotFound)})
		return
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, ErrRes{ErrStr: "auction changed concurrently, re-query and retry", Reason: "Conflict"})
		return
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrRes{ErrStr: "caller not permitted"})
		return
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrRes{ErrStr: err.Error()})
		return
	}
	var transient *service.TransientError
	if errors.As(err, &transient) {
		c.JSON(http.StatusServiceUnavailable, ErrRes{ErrStr: "temporarily unavailable, retry with backoff"})
		return
	}
	var invariant *service.InvariantError
	if errors.As(err, &invariant) {
		log.Errorf("invariant violation: %v", invariant)
		c.JSON(http.StatusInternalServerError, ErrRes{ErrStr: "internal error"})
		return
	}
	log.Errorf("unhandled error: %v", err)
	c.JSON(http.StatusInternalServerError, ErrRes{ErrStr: "internal error"})
}
