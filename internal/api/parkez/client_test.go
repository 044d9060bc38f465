package parkez

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkez/parkez-agent/internal/models"
)

type staticTokens struct {
	token string
}

func (s staticTokens) Token() (string, bool) {
	return s.token, s.token != ""
}

func TestRequestCarriesBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, staticTokens{token: "tok-xyz"})
	_, err := client.ListLots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-xyz", gotAuth)
}

func TestRequestWithoutSessionOmitsAuthHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, staticTokens{})
	_, err := client.ListLots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestDecodeErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "401 maps to ErrUnauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":"token expired"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnauthorized)
			},
		},
		{
			name:   "404 maps to ErrNotFound",
			status: http.StatusNotFound,
			body:   `{"error":"no such lot"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNotFound)
			},
		},
		{
			name:   "other status carries body error field",
			status: http.StatusConflict,
			body:   `{"error":"lot already exists at this address"}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
				assert.Equal(t, "lot already exists at this address", apiErr.Message)
			},
		},
		{
			name:   "message field used when error missing",
			status: http.StatusBadRequest,
			body:   `{"message":"invalid payload"}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, "invalid payload", apiErr.Message)
			},
		},
		{
			name:   "unparseable body falls back to generic message",
			status: http.StatusInternalServerError,
			body:   `<html>oops</html>`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, "request failed", apiErr.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, staticTokens{token: "tok"})
			_, err := client.GetLot(context.Background(), 1)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestLoginDecodesUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "amy@example.com", req.Email)

		json.NewEncoder(w).Encode(models.User{
			ID:    7,
			Email: req.Email,
			Token: "tok-new",
			Role:  models.RoleUser,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, staticTokens{})
	user, err := client.Login(context.Background(), "amy@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "tok-new", user.Token)
}

func TestPollExportStates(t *testing.T) {
	t.Run("non-200 means still pending", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		client := NewClient(server.URL, staticTokens{token: "tok"})
		result, err := client.PollExport(context.Background(), "task-1")
		require.NoError(t, err)
		assert.False(t, result.Ready)
		assert.Empty(t, result.Data)
	})

	t.Run("200 returns payload", func(t *testing.T) {
		csv := "id,spot_id\n1,2\n"
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/user-csv-export/task-1", r.URL.Path)
			w.Write([]byte(csv))
		}))
		defer server.Close()

		client := NewClient(server.URL, staticTokens{token: "tok"})
		result, err := client.PollExport(context.Background(), "task-1")
		require.NoError(t, err)
		assert.True(t, result.Ready)
		assert.Equal(t, csv, string(result.Data))
	})

	t.Run("transport error surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		client := NewClient(server.URL, staticTokens{token: "tok"})
		_, err := client.PollExport(context.Background(), "task-1")
		assert.Error(t, err)
	})
}

func TestStartExportReturnsTaskID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/user-csv-export", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(ExportStart{TaskID: "task-42"})
	}))
	defer server.Close()

	client := NewClient(server.URL, staticTokens{token: "tok"})
	taskID, err := client.StartExport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "task-42", taskID)
}
