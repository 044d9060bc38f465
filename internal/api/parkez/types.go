package parkez

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	Address     string `json:"address"`
	PhoneNumber string `json:"phone_number"`
	Age         int    `json:"age"`
}

// BookingRequest 预订请求
type BookingRequest struct {
	SpotID        int64  `json:"spot_id"`
	LotID         int64  `json:"lot_id"`
	UserID        int64  `json:"user_id"`
	VehicleNumber string `json:"vehicle_number"`
}

// ReleaseRequest 释放请求：状态迁移标记 + 去除非数字字符后的费用 + 释放时间
type ReleaseRequest struct {
	Status     string `json:"status"`
	TotalCost  string `json:"total_cost"`
	ReleasedAt string `json:"released_at"`
}

// LotRequest 停车场创建/更新请求
type LotRequest struct {
	PrimeLocationName string  `json:"prime_location_name"`
	Price             float64 `json:"price"`
	Address           string  `json:"address"`
	Pincode           string  `json:"pincode"`
	NumberOfSpots     int     `json:"number_of_spots"`
}

// SpotRequest 车位创建请求
type SpotRequest struct {
	LotID  int64  `json:"lot_id"`
	Status string `json:"status"`
}

// ProfileUpdate 资料更新请求，密码留空表示不修改
type ProfileUpdate struct {
	Email       string `json:"email"`
	Password    string `json:"password,omitempty"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
	Age         int    `json:"age"`
}

// ExportStart 导出任务创建响应
type ExportStart struct {
	TaskID string `json:"task_id"`
}

// ExportPoll 导出任务轮询结果
// Ready 为 true 时 Data 为 CSV 内容；否则任务仍在进行中
type ExportPoll struct {
	Ready bool
	Data  []byte
}
