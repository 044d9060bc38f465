package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/parkez/parkez-agent/internal/models"
)

// LotSnapshotRepository 停车场快照仓库
// 每次全量加载可用性后写入一条快照，后端不可用时支撑本地历史展示
type LotSnapshotRepository struct {
	db *DB
}

// NewLotSnapshotRepository 创建停车场快照仓库
func NewLotSnapshotRepository(db *DB) *LotSnapshotRepository {
	return &LotSnapshotRepository{db: db}
}

// Record 写入一批停车场快照
func (r *LotSnapshotRepository) Record(ctx context.Context, lots []models.LotSummary) error {
	query := `
		INSERT INTO lot_snapshots (
			lot_id, prime_location_name, address, pincode, price,
			available_spots, total_spots, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	now := time.Now()
	for _, lot := range lots {
		_, err := r.db.Pool.Exec(ctx, query,
			lot.ID,
			lot.PrimeLocationName,
			lot.Address,
			lot.Pincode,
			lot.Price,
			lot.AvailableSpots,
			lot.TotalSpots,
			now,
		)
		if err != nil {
			return fmt.Errorf("insert lot snapshot: %w", err)
		}
	}
	return nil
}

// Latest 每个停车场的最新快照
func (r *LotSnapshotRepository) Latest(ctx context.Context) ([]models.LotSummary, error) {
	query := `
		SELECT DISTINCT ON (lot_id)
			lot_id, prime_location_name, address, pincode, price,
			available_spots, total_spots
		FROM lot_snapshots
		ORDER BY lot_id, recorded_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query lot snapshots: %w", err)
	}
	defer rows.Close()

	var lots []models.LotSummary
	for rows.Next() {
		var lot models.LotSummary
		if err := rows.Scan(
			&lot.ID,
			&lot.PrimeLocationName,
			&lot.Address,
			&lot.Pincode,
			&lot.Price,
			&lot.AvailableSpots,
			&lot.TotalSpots,
		); err != nil {
			return nil, fmt.Errorf("scan lot snapshot: %w", err)
		}
		lot.NumberOfSpots = lot.TotalSpots
		lot.Level = models.AvailabilityLevel(lot.AvailableSpots)
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}
