package repository

import (
	"context"
	"fmt"

	"github.com/parkez/parkez-agent/internal/models"
)

// BookingHistoryRepository 预订历史镜像仓库
type BookingHistoryRepository struct {
	db *DB
}

// NewBookingHistoryRepository 创建预订历史仓库
func NewBookingHistoryRepository(db *DB) *BookingHistoryRepository {
	return &BookingHistoryRepository{db: db}
}

// Upsert 写入或更新一条预订镜像
func (r *BookingHistoryRepository) Upsert(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO booking_history (
			booking_id, spot_id, lot_id, user_id, vehicle_number,
			status, total_cost, created_at, released_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (booking_id) DO UPDATE SET
			status = EXCLUDED.status,
			total_cost = EXCLUDED.total_cost,
			released_at = EXCLUDED.released_at
	`
	_, err := r.db.Pool.Exec(ctx, query,
		b.ID,
		b.SpotID,
		b.LotID,
		b.UserID,
		b.VehicleNumber,
		b.Status,
		b.TotalCost,
		b.CreatedAt,
		b.ReleasedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert booking history: %w", err)
	}
	return nil
}

// ListByUser 用户预订镜像，按创建时间倒序
func (r *BookingHistoryRepository) ListByUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	query := `
		SELECT booking_id, spot_id, lot_id, user_id, vehicle_number,
		       status, total_cost, created_at, released_at
		FROM booking_history
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query booking history: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(
			&b.ID,
			&b.SpotID,
			&b.LotID,
			&b.UserID,
			&b.VehicleNumber,
			&b.Status,
			&b.TotalCost,
			&b.CreatedAt,
			&b.ReleasedAt,
		); err != nil {
			return nil, fmt.Errorf("scan booking history: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
