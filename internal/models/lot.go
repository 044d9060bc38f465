package models

// ParkingLot 停车场（后端持有，客户端只读缓存）
type ParkingLot struct {
	ID                int64   `json:"id" db:"id"`
	PrimeLocationName string  `json:"prime_location_name" db:"prime_location_name"`
	Price             float64 `json:"price" db:"price"` // 每小时价格
	Address           string  `json:"address" db:"address"`
	Pincode           string  `json:"pincode" db:"pincode"`
	NumberOfSpots     int     `json:"number_of_spots" db:"number_of_spots"`
}

// 可用车位数量等级（前端据此着色）
const (
	AvailabilityNone = "none" // 无可用车位
	AvailabilityLow  = "low"  // 剩余 1-2 个
	AvailabilityOK   = "ok"
)

// LotSummary 停车场 + 实时可用车位统计
type LotSummary struct {
	ParkingLot
	AvailableSpots int    `json:"available_spots"`
	TotalSpots     int    `json:"total_spots"`
	Level          string `json:"level"`
}

// AvailabilityLevel 根据可用数量计算等级
func AvailabilityLevel(available int) string {
	switch {
	case available == 0:
		return AvailabilityNone
	case available <= 2:
		return AvailabilityLow
	default:
		return AvailabilityOK
	}
}
