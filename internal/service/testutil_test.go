package service

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parkez/parkez-agent/internal/models"
	"github.com/parkez/parkez-agent/internal/session"
	"github.com/parkez/parkez-agent/pkg/ws"
)

func testUser() *models.User {
	return &models.User{
		ID:    7,
		Email: "amy@example.com",
		Token: "tok-1",
		Role:  models.RoleUser,
	}
}

func testSession(t *testing.T, user *models.User) *session.Store {
	t.Helper()
	store := session.NewStore(filepath.Join(t.TempDir(), "session.json"), zap.NewNop())
	if user != nil {
		require.NoError(t, store.Set(user))
	}
	return store
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// recordingNotifier 收集广播出去的流程状态更新
type recordingNotifier struct {
	mu      sync.Mutex
	updates []ws.FlowUpdate
}

func (n *recordingNotifier) BroadcastFlowUpdate(update ws.FlowUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, update)
}

func (n *recordingNotifier) navigations() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, u := range n.updates {
		if u.NavigateTo != "" {
			count++
		}
	}
	return count
}

func (n *recordingNotifier) last() (ws.FlowUpdate, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.updates) == 0 {
		return ws.FlowUpdate{}, false
	}
	return n.updates[len(n.updates)-1], true
}
