package models

import "time"

// 预订状态（传输层单字母编码）
const (
	BookingActive   = "A"
	BookingReleased = "R"
	BookingComplete = "C"
	BookingOccupied = "O"
)

// bookingStatusNames 状态编码到展示名的映射
var bookingStatusNames = map[string]string{
	BookingActive:   "Active",
	BookingReleased: "Released",
	BookingComplete: "Completed",
	BookingOccupied: "Occupied",
}

// Booking 预订记录
type Booking struct {
	ID            int64      `json:"id" db:"id"`
	SpotID        int64      `json:"spot_id" db:"spot_id"`
	LotID         int64      `json:"lot_id" db:"lot_id"`
	UserID        int64      `json:"user_id" db:"user_id"`
	VehicleNumber string     `json:"vehicle_number" db:"vehicle_number"`
	Status        string     `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	ReleasedAt    *time.Time `json:"released_at,omitempty" db:"released_at"`
	TotalCost     *float64   `json:"total_cost,omitempty" db:"total_cost"`
}

// IsActive 是否为进行中的预订
func (b *Booking) IsActive() bool {
	return b.Status == BookingActive
}

// StatusName 状态展示名，未知编码原样返回
func (b *Booking) StatusName() string {
	if name, ok := bookingStatusNames[b.Status]; ok {
		return name
	}
	return b.Status
}
