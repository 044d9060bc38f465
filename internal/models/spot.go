package models

// 车位状态（传输层单字母编码）
const (
	SpotAvailable   = "A"
	SpotOccupied    = "O"
	SpotReserved    = "R"
	SpotMaintenance = "M"
)

// ParkingSpot 车位
type ParkingSpot struct {
	ID     int64  `json:"id" db:"id"`
	LotID  int64  `json:"lot_id" db:"lot_id"`
	Status string `json:"status" db:"status"`
}

// SpotDetails 被占用车位的详情（含当前预订）
type SpotDetails struct {
	ParkingSpot
	Booking *Booking `json:"booking,omitempty"`
}
