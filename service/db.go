package service

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"auctionhouse/model"
)

// NewDB opens the MySQL connection and synchronizes the table structure.
// reset drops and recreates all tables, development only.
func NewDB(dsn string, reset bool) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn+"?charset=utf8mb4&parseTime=True&loc=Local"), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if reset {
		if err = model.DropTable(db); err != nil {
			return nil, err
		}
	}
	if err = model.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
