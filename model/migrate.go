package model

import "gorm.io/gorm"

var Tables = []interface{}{
	&Auction{},
	&Bid{},
	&AuctionActivity{},
	&RateLimitRecord{},
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Tables...)
}

func DropTable(db *gorm.DB) error {
	return db.Migrator().DropTable(Tables...)
}
