package models

import "encoding/json"

// AdminSummary 管理端汇总报表（后端聚合，客户端透传）
type AdminSummary struct {
	Overview        json.RawMessage `json:"overview,omitempty"`
	RevenueByLot    json.RawMessage `json:"revenueByLot,omitempty"`
	ParkingLotStats json.RawMessage `json:"parkingLotStats,omitempty"`
}

// UserSummary 用户端周期汇总
type UserSummary struct {
	Period  string          `json:"period"`
	Payload json.RawMessage `json:"payload"`
}
