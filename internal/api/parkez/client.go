package parkez

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/parkez/parkez-agent/internal/models"
)

const defaultTimeout = 30 * time.Second

// 错误定义
var (
	ErrUnauthorized = fmt.Errorf("unauthorized")
	ErrNotFound     = fmt.Errorf("not found")
)

// APIError 后端返回的业务错误，消息取自响应体的 error/message 字段
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("parkez api: status=%d message=%s", e.StatusCode, e.Message)
}

// TokenProvider 提供当前会话的 bearer token
type TokenProvider interface {
	Token() (string, bool)
}

// Client ParkEZ 后端 API 客户端
type Client struct {
	httpClient *http.Client
	apiHost    string
	tokens     TokenProvider
}

// NewClient 创建客户端
func NewClient(apiHost string, tokens TokenProvider) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		apiHost: apiHost,
		tokens:  tokens,
	}
}

// doRequest 执行带认证的请求
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiHost+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if token, ok := c.tokens.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.httpClient.Do(req)
}

// decode 处理状态码并解码响应体
// 401 返回 ErrUnauthorized，404 返回 ErrNotFound，
// 其余非 2xx 解析 error/message 字段组装 APIError
func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return newAPIError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	message := "request failed"
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			message = payload.Error
		} else if payload.Message != "" {
			message = payload.Message
		}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

// Login 登录，成功返回带 token 的用户
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	resp, err := c.doRequest(ctx, "POST", "/login", LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}

	var user models.User
	if err := decode(resp, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Register 注册新用户
func (c *Client) Register(ctx context.Context, reg RegisterRequest) error {
	resp, err := c.doRequest(ctx, "POST", "/register", reg)
	if err != nil {
		return fmt.Errorf("register request: %w", err)
	}
	return decode(resp, nil)
}

// FetchProfile 获取用户资料
func (c *Client) FetchProfile(ctx context.Context, userID int64) (*models.User, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/profile/%d", userID), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	var user models.User
	if err := decode(resp, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile 更新用户资料
func (c *Client) UpdateProfile(ctx context.Context, userID int64, update ProfileUpdate) error {
	resp, err := c.doRequest(ctx, "PUT", fmt.Sprintf("/api/profile/%d", userID), update)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return decode(resp, nil)
}

// ListLots 获取全部停车场
func (c *Client) ListLots(ctx context.Context) ([]models.ParkingLot, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/parkinglots", nil)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}

	var lots []models.ParkingLot
	if err := decode(resp, &lots); err != nil {
		return nil, err
	}
	return lots, nil
}

// GetLot 获取单个停车场
func (c *Client) GetLot(ctx context.Context, id int64) (*models.ParkingLot, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/parkinglots/%d", id), nil)
	if err != nil {
		return nil, fmt.Errorf("get lot: %w", err)
	}

	var lot models.ParkingLot
	if err := decode(resp, &lot); err != nil {
		return nil, err
	}
	return &lot, nil
}

// CreateLot 创建停车场，地址重复时后端返回 409
func (c *Client) CreateLot(ctx context.Context, req LotRequest) error {
	resp, err := c.doRequest(ctx, "POST", "/api/parkinglots", req)
	if err != nil {
		return fmt.Errorf("create lot: %w", err)
	}
	return decode(resp, nil)
}

// UpdateLot 更新停车场
func (c *Client) UpdateLot(ctx context.Context, id int64, req LotRequest) error {
	resp, err := c.doRequest(ctx, "PUT", fmt.Sprintf("/api/parkinglots/%d", id), req)
	if err != nil {
		return fmt.Errorf("update lot: %w", err)
	}
	return decode(resp, nil)
}

// DeleteLot 删除停车场，有车位被占用时后端拒绝
func (c *Client) DeleteLot(ctx context.Context, id int64) error {
	resp, err := c.doRequest(ctx, "DELETE", fmt.Sprintf("/api/parkinglots/%d", id), nil)
	if err != nil {
		return fmt.Errorf("delete lot: %w", err)
	}
	return decode(resp, nil)
}

// AvailableSpots 按停车场查询可用车位
func (c *Client) AvailableSpots(ctx context.Context, lotID int64) ([]models.ParkingSpot, error) {
	path := "/api/parkingspots/available?lot_id=" + url.QueryEscape(fmt.Sprintf("%d", lotID))
	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, fmt.Errorf("available spots: %w", err)
	}

	var spots []models.ParkingSpot
	if err := decode(resp, &spots); err != nil {
		return nil, err
	}
	return spots, nil
}

// ListSpots 获取全部车位
func (c *Client) ListSpots(ctx context.Context) ([]models.ParkingSpot, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/parkingspots", nil)
	if err != nil {
		return nil, fmt.Errorf("list spots: %w", err)
	}

	var spots []models.ParkingSpot
	if err := decode(resp, &spots); err != nil {
		return nil, err
	}
	return spots, nil
}

// GetSpot 获取单个车位
func (c *Client) GetSpot(ctx context.Context, id int64) (*models.ParkingSpot, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/parkingspots/%d", id), nil)
	if err != nil {
		return nil, fmt.Errorf("get spot: %w", err)
	}

	var spot models.ParkingSpot
	if err := decode(resp, &spot); err != nil {
		return nil, err
	}
	return &spot, nil
}

// CreateSpot 创建车位
func (c *Client) CreateSpot(ctx context.Context, req SpotRequest) error {
	resp, err := c.doRequest(ctx, "POST", "/api/parkingspots", req)
	if err != nil {
		return fmt.Errorf("create spot: %w", err)
	}
	return decode(resp, nil)
}

// DeleteSpot 删除车位
func (c *Client) DeleteSpot(ctx context.Context, id int64) error {
	resp, err := c.doRequest(ctx, "DELETE", fmt.Sprintf("/api/parkingspots/%d", id), nil)
	if err != nil {
		return fmt.Errorf("delete spot: %w", err)
	}
	return decode(resp, nil)
}

// SpotDetails 被占用车位详情
func (c *Client) SpotDetails(ctx context.Context, id int64) (*models.SpotDetails, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/spotdetails/%d", id), nil)
	if err != nil {
		return nil, fmt.Errorf("spot details: %w", err)
	}

	var details models.SpotDetails
	if err := decode(resp, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// CreateBooking 提交预订
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	resp, err := c.doRequest(ctx, "POST", "/api/bookings", req)
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	var booking models.Booking
	if err := decode(resp, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetBooking 获取预订
func (c *Client) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/bookings/%d", id), nil)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}

	var booking models.Booking
	if err := decode(resp, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// UserBookings 获取用户全部预订
func (c *Client) UserBookings(ctx context.Context, userID int64) ([]models.Booking, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/bookings/user/%d", userID), nil)
	if err != nil {
		return nil, fmt.Errorf("user bookings: %w", err)
	}

	var bookings []models.Booking
	if err := decode(resp, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// ReleaseBooking 释放车位
func (c *Client) ReleaseBooking(ctx context.Context, id int64, req ReleaseRequest) error {
	resp, err := c.doRequest(ctx, "PUT", fmt.Sprintf("/api/bookings/%d/release", id), req)
	if err != nil {
		return fmt.Errorf("release booking: %w", err)
	}
	return decode(resp, nil)
}

// StartExport 触发异步 CSV 导出，返回任务 ID
func (c *Client) StartExport(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, "POST", "/api/user-csv-export", nil)
	if err != nil {
		return "", fmt.Errorf("start export: %w", err)
	}

	var start ExportStart
	if err := decode(resp, &start); err != nil {
		return "", err
	}
	return start.TaskID, nil
}

// PollExport 轮询导出任务
// 200 表示完成，响应体为 CSV 二进制；其余状态码一律视为仍在进行中
func (c *Client) PollExport(ctx context.Context, taskID string) (*ExportPoll, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/user-csv-export/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("poll export: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &ExportPoll{Ready: false}, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export body: %w", err)
	}
	return &ExportPoll{Ready: true, Data: data}, nil
}

// AdminSummary 管理端汇总报表
func (c *Client) AdminSummary(ctx context.Context) (*models.AdminSummary, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/admin-summary", nil)
	if err != nil {
		return nil, fmt.Errorf("admin summary: %w", err)
	}

	var summary models.AdminSummary
	if err := decode(resp, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// UserSummary 用户周期汇总
func (c *Client) UserSummary(ctx context.Context, userID int64, period string) (*models.UserSummary, error) {
	path := fmt.Sprintf("/api/user-summary/%d?period=%s", userID, url.QueryEscape(period))
	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, fmt.Errorf("user summary: %w", err)
	}

	summary := models.UserSummary{Period: period}
	if err := decode(resp, &summary.Payload); err != nil {
		return nil, err
	}
	return &summary, nil
}

// RegisteredUsers 获取注册用户列表
func (c *Client) RegisteredUsers(ctx context.Context) ([]models.User, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/registered-users", nil)
	if err != nil {
		return nil, fmt.Errorf("registered users: %w", err)
	}

	var users []models.User
	if err := decode(resp, &users); err != nil {
		return nil, err
	}
	return users, nil
}
