package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateLotSnapshots,
		migrationCreateBookingHistory,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateLotSnapshots = `
CREATE TABLE IF NOT EXISTS lot_snapshots (
    id BIGSERIAL PRIMARY KEY,
    lot_id BIGINT NOT NULL,
    prime_location_name VARCHAR(255) NOT NULL,
    address VARCHAR(255) NOT NULL,
    pincode VARCHAR(10) NOT NULL,
    price DOUBLE PRECISION NOT NULL,
    available_spots INT NOT NULL,
    total_spots INT NOT NULL,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_lot_snapshots_lot_id ON lot_snapshots(lot_id);
CREATE INDEX IF NOT EXISTS idx_lot_snapshots_recorded_at ON lot_snapshots(recorded_at);
`

const migrationCreateBookingHistory = `
CREATE TABLE IF NOT EXISTS booking_history (
    id BIGSERIAL PRIMARY KEY,
    booking_id BIGINT NOT NULL UNIQUE,
    spot_id BIGINT NOT NULL,
    lot_id BIGINT NOT NULL,
    user_id BIGINT NOT NULL,
    vehicle_number VARCHAR(20),
    status VARCHAR(1) NOT NULL,
    total_cost DOUBLE PRECISION,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    released_at TIMESTAMP WITH TIME ZONE
);
CREATE INDEX IF NOT EXISTS idx_booking_history_user_id ON booking_history(user_id);
CREATE INDEX IF NOT EXISTS idx_booking_history_created_at ON booking_history(created_at);
`
