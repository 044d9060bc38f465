package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/api/parkez"
	"github.com/parkez/parkez-agent/internal/models"
)

// provisionBackend 维护真实的车位清单，让对账可以跑多轮
type provisionBackend struct {
	server *httptest.Server

	mu         sync.Mutex
	lots       []models.ParkingLot
	spots      []models.ParkingSpot
	nextSpotID int64
	failNext   int // 接下来 N 次创建请求返回 500
}

func newProvisionBackend(t *testing.T) *provisionBackend {
	b := &provisionBackend{nextSpotID: 1}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/parkinglots", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(t, w, http.StatusOK, b.lots)
	})
	mux.HandleFunc("/api/parkingspots", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		if r.Method == http.MethodGet {
			writeJSON(t, w, http.StatusOK, b.spots)
			return
		}

		if b.failNext > 0 {
			b.failNext--
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"spot creation failed"}`))
			return
		}

		var req parkez.SpotRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		b.spots = append(b.spots, models.ParkingSpot{
			ID:     b.nextSpotID,
			LotID:  req.LotID,
			Status: req.Status,
		})
		b.nextSpotID++
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("/api/parkingspots/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/parkingspots/"), 10, 64)
		require.NoError(t, err)
		for _, s := range b.spots {
			if s.ID == id {
				writeJSON(t, w, http.StatusOK, s)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"spot not found"}`))
	})
	mux.HandleFunc("/api/spotdetails/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/spotdetails/"), 10, 64)
		require.NoError(t, err)
		for _, s := range b.spots {
			if s.ID == id && s.Status == models.SpotOccupied {
				writeJSON(t, w, http.StatusOK, models.SpotDetails{
					ParkingSpot: s,
					Booking:     &models.Booking{ID: 31, SpotID: s.ID, Status: models.BookingActive},
				})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"spot is not occupied"}`))
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *provisionBackend) spotCount(lotID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for _, s := range b.spots {
		if s.LotID == lotID {
			count++
		}
	}
	return count
}

func newAdminService(t *testing.T, backend *provisionBackend) *AdminService {
	sessions := testSession(t, &models.User{ID: 1, Email: "admin@parkez.in", Token: "tok-admin", Role: models.RoleAdmin})
	client := parkez.NewClient(backend.server.URL, sessions)
	return NewAdminService(zap.NewNop(), client, sessions)
}

func TestReconcileCreatesMissingSpots(t *testing.T) {
	backend := newProvisionBackend(t)
	backend.lots = []models.ParkingLot{
		{ID: 1, PrimeLocationName: "Central Mall", NumberOfSpots: 3},
		{ID: 2, PrimeLocationName: "Airport Lot B", NumberOfSpots: 2},
	}
	backend.spots = []models.ParkingSpot{
		{ID: 90, LotID: 1, Status: models.SpotOccupied},
		{ID: 91, LotID: 2, Status: models.SpotAvailable},
		{ID: 92, LotID: 2, Status: models.SpotAvailable},
	}
	backend.nextSpotID = 93
	svc := newAdminService(t, backend)

	report, err := svc.ReconcileSpots(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.LotsChecked)
	assert.Equal(t, 2, report.SpotsCreated) // 场 1 缺 2 个
	assert.Equal(t, 0, report.Failures)
	assert.Equal(t, 3, backend.spotCount(1))
	assert.Equal(t, 2, backend.spotCount(2))

	// 补建的车位应为可用状态
	backend.mu.Lock()
	for _, spot := range backend.spots[3:] {
		assert.Equal(t, models.SpotAvailable, spot.Status)
	}
	backend.mu.Unlock()
}

func TestReconcileIsIdempotent(t *testing.T) {
	backend := newProvisionBackend(t)
	backend.lots = []models.ParkingLot{
		{ID: 1, PrimeLocationName: "Central Mall", NumberOfSpots: 4},
	}
	svc := newAdminService(t, backend)

	report, err := svc.ReconcileSpots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.SpotsCreated)

	// 第二轮没有缺口，不再创建
	report, err = svc.ReconcileSpots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.SpotsCreated)
	assert.Equal(t, 4, backend.spotCount(1))
}

func TestReconcileNeverPrunesExcessSpots(t *testing.T) {
	backend := newProvisionBackend(t)
	backend.lots = []models.ParkingLot{
		{ID: 1, PrimeLocationName: "Central Mall", NumberOfSpots: 2},
	}
	backend.spots = []models.ParkingSpot{
		{ID: 90, LotID: 1, Status: models.SpotAvailable},
		{ID: 91, LotID: 1, Status: models.SpotAvailable},
		{ID: 92, LotID: 1, Status: models.SpotOccupied},
	}
	svc := newAdminService(t, backend)

	report, err := svc.ReconcileSpots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.SpotsCreated)
	// 超出容量的车位保留，等待管理员人工处理
	assert.Equal(t, 3, backend.spotCount(1))
}

func TestReconcileContinuesPastFailures(t *testing.T) {
	backend := newProvisionBackend(t)
	backend.lots = []models.ParkingLot{
		{ID: 1, PrimeLocationName: "Central Mall", NumberOfSpots: 3},
		{ID: 2, PrimeLocationName: "Airport Lot B", NumberOfSpots: 1},
	}
	backend.failNext = 1
	svc := newAdminService(t, backend)

	report, err := svc.ReconcileSpots(context.Background())
	require.NoError(t, err)

	// 首次创建失败不中断，剩余缺口继续补
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, 3, report.SpotsCreated)
	assert.Equal(t, 2, backend.spotCount(1))
	assert.Equal(t, 1, backend.spotCount(2))

	// 再跑一轮把失败缺口补齐
	report, err = svc.ReconcileSpots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SpotsCreated)
	assert.Equal(t, 3, backend.spotCount(1))
}

func TestSpotDetailsFallsBackToPlainSpot(t *testing.T) {
	backend := newProvisionBackend(t)
	backend.spots = []models.ParkingSpot{
		{ID: 1, LotID: 1, Status: models.SpotOccupied},
		{ID: 2, LotID: 1, Status: models.SpotAvailable},
	}
	backend.nextSpotID = 3
	svc := newAdminService(t, backend)

	occupied, err := svc.SpotDetails(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, occupied.Booking)
	assert.Equal(t, int64(1), occupied.Booking.SpotID)

	free, err := svc.SpotDetails(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), free.ID)
	assert.Nil(t, free.Booking)

	_, err = svc.SpotDetails(context.Background(), 9)
	assert.ErrorIs(t, err, parkez.ErrNotFound)
}

func TestSearchLotsByField(t *testing.T) {
	lots := []models.ParkingLot{
		{ID: 1, PrimeLocationName: "Central Mall", Address: "12 MG Road", Pincode: "560001"},
		{ID: 2, PrimeLocationName: "Airport Lot B", Address: "Terminal 2", Pincode: "560300"},
	}

	tests := []struct {
		name    string
		field   string
		term    string
		wantIDs []int64
	}{
		{"all fields empty term", SearchAll, "", []int64{1, 2}},
		{"by name", SearchName, "CENTRAL", []int64{1}},
		{"by address", SearchAddress, "terminal", []int64{2}},
		{"by pincode", SearchPincode, "560001", []int64{1}},
		{"all fields matches any", SearchAll, "560", []int64{1, 2}},
		{"name search misses address text", SearchName, "terminal", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []int64
			for _, lot := range SearchLotsByField(lots, tt.field, tt.term) {
				ids = append(ids, lot.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}
