package data

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DataClient holds the static topology in Postgres and engine snapshots in Redis.
type DataClient struct {
	pg     *pgxpool.Pool
	rdb    *redis.Client
	logger *zap.SugaredLogger
}

func NewDataClient(db *pgxpool.Pool, rdb *redis.Client, logger *zap.SugaredLogger) *DataClient {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DataClient{
		pg:     db,
		rdb:    rdb,
		logger: logger,
	}
}
