package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/api/parkez"
	"github.com/parkez/parkez-agent/internal/models"
	"github.com/parkez/parkez-agent/internal/state"
)

func TestElapsedHours(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"zero elapsed", 0, 0},
		{"one millisecond rounds up", time.Millisecond, 1},
		{"under an hour rounds up", 25 * time.Minute, 1},
		{"exactly one hour", time.Hour, 1},
		{"just over an hour", 61 * time.Minute, 2},
		{"just over two hours", 125 * time.Minute, 3},
		{"clock skew clamps to zero", -time.Hour, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ElapsedHours(base, base.Add(tt.elapsed)))
		})
	}
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "₹100.00", FormatCost(100))
	assert.Equal(t, "₹0.00", FormatCost(0))
	assert.Equal(t, "₹37.50", FormatCost(37.5))
}

type releaseBackend struct {
	server *httptest.Server

	booking      models.Booking
	lotStatus    int
	lotPrice     float64
	releaseCalls atomic.Int64
	lastRelease  parkez.ReleaseRequest
}

func newReleaseBackend(t *testing.T) *releaseBackend {
	b := &releaseBackend{lotStatus: http.StatusOK, lotPrice: 50}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/bookings/100", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, b.booking)
	})
	mux.HandleFunc("/api/parkinglots/1", func(w http.ResponseWriter, r *http.Request) {
		if b.lotStatus != http.StatusOK {
			w.WriteHeader(b.lotStatus)
			return
		}
		writeJSON(t, w, http.StatusOK, models.ParkingLot{
			ID: 1, PrimeLocationName: "Central Mall", Price: b.lotPrice,
		})
	})
	mux.HandleFunc("/api/bookings/100/release", func(w http.ResponseWriter, r *http.Request) {
		b.releaseCalls.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&b.lastRelease))
		writeJSON(t, w, http.StatusOK, map[string]string{"message": "released"})
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func newReleaseService(t *testing.T, backend *releaseBackend, notifier FlowNotifier, now time.Time) *ReleaseService {
	sessions := testSession(t, testUser())
	client := parkez.NewClient(backend.server.URL, sessions)
	svc := NewReleaseService(zap.NewNop(), client, sessions, nil, notifier, 5*time.Millisecond)
	svc.now = func() time.Time { return now }
	return svc
}

func TestReleaseLoadComputesCeilHourCost(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	backend := newReleaseBackend(t)
	backend.booking = models.Booking{
		ID: 100, SpotID: 21, LotID: 1, UserID: 7,
		VehicleNumber: "KA-01-AB-1234",
		Status:        models.BookingActive,
		CreatedAt:     now.Add(-61 * time.Minute),
	}
	svc := newReleaseService(t, backend, nil, now)

	preview, err := svc.Load(context.Background(), 100)
	require.NoError(t, err)

	// 61 分钟按 2 小时计费
	assert.Equal(t, "2 hours", preview.ParkingTime)
	assert.Equal(t, "₹100.00", preview.TotalCost)
	assert.Equal(t, 50.0, preview.HourlyPrice)
	assert.Equal(t, int64(100), preview.BookingID)
	assert.Equal(t, "KA-01-AB-1234", preview.VehicleNumber)

	flowState, _ := svc.State()
	assert.Equal(t, state.ReleaseReady, flowState)
}

func TestReleaseLoadLongStay(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	backend := newReleaseBackend(t)
	backend.booking = models.Booking{
		ID: 100, SpotID: 21, LotID: 1, UserID: 7,
		Status:    models.BookingActive,
		CreatedAt: now.Add(-125 * time.Minute),
	}
	svc := newReleaseService(t, backend, nil, now)

	preview, err := svc.Load(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, "3 hours", preview.ParkingTime)
	assert.Equal(t, "₹150.00", preview.TotalCost)
}

func TestReleaseLoadLotFailureDefaultsPriceZero(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	backend := newReleaseBackend(t)
	backend.lotStatus = http.StatusInternalServerError
	backend.booking = models.Booking{
		ID: 100, SpotID: 21, LotID: 1, UserID: 7,
		Status:    models.BookingActive,
		CreatedAt: now.Add(-90 * time.Minute),
	}
	svc := newReleaseService(t, backend, nil, now)

	// 停车场加载失败时降级：时长照常显示，费用按 0 计
	preview, err := svc.Load(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, "2 hours", preview.ParkingTime)
	assert.Equal(t, "₹0.00", preview.TotalCost)
	assert.Equal(t, 0.0, preview.HourlyPrice)

	flowState, _ := svc.State()
	assert.Equal(t, state.ReleaseReady, flowState)
}

func TestReleaseSendsDigitsOnlyCost(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	backend := newReleaseBackend(t)
	backend.booking = models.Booking{
		ID: 100, SpotID: 21, LotID: 1, UserID: 7,
		Status:    models.BookingActive,
		CreatedAt: now.Add(-61 * time.Minute),
	}
	svc := newReleaseService(t, backend, nil, now)

	_, err := svc.Load(context.Background(), 100)
	require.NoError(t, err)
	require.NoError(t, svc.Release(context.Background()))

	assert.Equal(t, int64(1), backend.releaseCalls.Load())
	// 货币符号不进传输层
	assert.Equal(t, "100.00", backend.lastRelease.TotalCost)
	assert.Equal(t, models.BookingReleased, backend.lastRelease.Status)
	assert.Equal(t, now.Format(time.RFC3339), backend.lastRelease.ReleasedAt)
}

func TestReleaseDoubleSubmitIsNoOp(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	backend := newReleaseBackend(t)
	backend.booking = models.Booking{
		ID: 100, SpotID: 21, LotID: 1, UserID: 7,
		Status:    models.BookingActive,
		CreatedAt: now.Add(-30 * time.Minute),
	}
	svc := newReleaseService(t, backend, nil, now)

	_, err := svc.Load(context.Background(), 100)
	require.NoError(t, err)
	require.NoError(t, svc.Release(context.Background()))

	// 跳转中重复点击不再发请求
	err = svc.Release(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, int64(1), backend.releaseCalls.Load())

	svc.Stop()
}

func TestReleaseRedirectBroadcast(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	backend := newReleaseBackend(t)
	backend.booking = models.Booking{
		ID: 100, SpotID: 21, LotID: 1, UserID: 7,
		Status:    models.BookingActive,
		CreatedAt: now.Add(-30 * time.Minute),
	}
	notifier := &recordingNotifier{}
	svc := newReleaseService(t, backend, notifier, now)

	_, err := svc.Load(context.Background(), 100)
	require.NoError(t, err)
	require.NoError(t, svc.Release(context.Background()))

	flowState, message := svc.State()
	assert.Equal(t, state.ReleaseRedirecting, flowState)
	assert.Equal(t, MsgReleaseSuccess, message)

	assert.Eventually(t, func() bool {
		flowState, _ := svc.State()
		if flowState != state.ReleaseDone {
			return false
		}
		last, ok := notifier.last()
		return ok && last.NavigateTo != ""
	}, time.Second, 5*time.Millisecond)

	last, _ := notifier.last()
	assert.Contains(t, last.NavigateTo, "/customer?refresh=")
	assert.Contains(t, last.NavigateTo, "from=release")
}

func TestReleaseWithoutLoad(t *testing.T) {
	backend := newReleaseBackend(t)
	svc := newReleaseService(t, backend, nil, time.Now())

	err := svc.Release(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}
