package router

import (
	"github.com/gin-gonic/gin"

	"auctionhouse/handlers/auction"
	"auctionhouse/middleware"
	"auctionhouse/service"
)

// New assembles the HTTP engine around the injected auction service.
func New(svc *service.AuctionService, auth gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Cors())
	auction.Routers(r, svc, auth)
	return r
}

// Run starts the HTTP server on addr.
func Run(addr string, svc *service.AuctionService, auth gin.HandlerFunc) error {
	return New(svc, auth).Run(addr)
}
