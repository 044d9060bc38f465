package models

// 用户角色
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User 已登录用户（含后端签发的 bearer token）
type User struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	Token         string `json:"token"`
	Role          string `json:"roles"`
	FullName      string `json:"full_name,omitempty"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	VehicleNumber string `json:"vehicle_number,omitempty"`
	Address       string `json:"address,omitempty"`
	Age           int    `json:"age,omitempty"`
}

// IsAdmin 是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
