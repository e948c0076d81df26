package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/odpf/salt/log"
	"github.com/patrickmn/go-cache"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	CacheTTL     = time.Hour * 1
	CacheCleanUp = time.Minute * 15
)

type txKey struct{}

// Store keeps jobs, recipes and their queue in postgres. Every call made
// with a context returned by Transaction joins that transaction.
type Store struct {
	db     *gorm.DB
	logger log.Logger

	revisions *cache.Cache
}

func NewStore(db *gorm.DB, logger log.Logger) *Store {
	return &Store{
		db:        db,
		logger:    logger,
		revisions: cache.New(CacheTTL, CacheCleanUp),
	}
}

// Connect opens a gorm connection pool to the database at dsn.
func Connect(dsn string, maxIdleConnections, maxOpenConnections int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Use(newTracer()); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(maxIdleConnections)
	sqlDB.SetMaxOpenConns(maxOpenConnections)
	return db, nil
}

func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// locked selects rows for update, the lock is held until the surrounding
// transaction ends.
func (s *Store) locked(ctx context.Context) *gorm.DB {
	return s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
