package main

import (
	"context"
	"time"

	"auctionhouse/conf"
	"auctionhouse/log"
	"auctionhouse/middleware"
	"auctionhouse/node"
	"auctionhouse/ratelimit"
	"auctionhouse/router"
	"auctionhouse/service"
)

// @title       auction engine API
// @version     1.0
// @description Bid acceptance and settlement backend: validates bids, extends deadlines against sniping, reconciles chain-backed auctions with the off-chain mirror.
func main() {
	db, err := service.NewDB(conf.MysqlDsn, conf.ResetDB)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	store := service.NewGormStore(db)

	limiter := ratelimit.New(ratelimit.NewGormRecordStore(db))
	limiter.StartSweeper(time.Duration(conf.SweepInterval) * time.Second)
	defer limiter.Stop()

	var reconciler *service.Reconciler
	if conf.ChainUrl != "" && conf.AuctionHouse != "" {
		client, err := node.Dial(conf.ChainUrl, conf.AuctionHouse)
		if err != nil {
			log.Fatalf("failed to dial chain node %s: %v", conf.ChainUrl, err)
		}
		chainId, err := client.ChainId(context.Background())
		if err != nil {
			log.Fatalf("failed to query chain id: %v", err)
		}
		height, err := client.BlockNumber(context.Background())
		if err != nil {
			log.Fatalf("failed to query block height: %v", err)
		}
		log.Infof("chain reconciliation enabled: chainId=%s height=%d contract=%s", chainId, height, conf.AuctionHouse)
		reconciler = service.NewReconciler(client, store)
	} else {
		log.Infof("no chain node configured, running off-chain auctions only")
	}

	svc := service.NewAuctionService(store, limiter, reconciler, service.Config{
		Policy: service.ExtensionPolicy{
			Window:        time.Duration(conf.SnipeWindow) * time.Second,
			Increment:     time.Duration(conf.SnipeExtension) * time.Second,
			MaxExtensions: conf.MaxExtensions,
		},
		BidRateLimit:  conf.BidRateLimit,
		BidRateWindow: time.Duration(conf.BidRateWindow) * time.Second,
	})

	auth := middleware.Auth(middleware.StaticTokenResolver(conf.ParseAuthTokens()))
	if err := router.Run(conf.ServerAddr, svc, auth); err != nil {
		log.Fatalf("server failed to run: %v", err)
	}
}
