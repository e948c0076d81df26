package postgres

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/odpf/salt/log"
	"gorm.io/gorm"
)

// NewMemoryStore opens a private in-memory sqlite database with the same
// tables as the postgres schema. Row locks are not supported by sqlite, a
// single connection serializes every transaction instead.
func NewMemoryStore(logger log.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		return nil, fmt.Errorf("unable to open memory store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&JobType{},
		&Error{},
		&RecipeTypeRevision{},
		&Recipe{},
		&Job{},
		&RecipeNode{},
		&Queue{},
	); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("unable to create memory store tables: %w", err)
	}
	return NewStore(db, logger), nil
}
