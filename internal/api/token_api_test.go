package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-broadcast-service/internal/api"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// --- Mocks ---
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Register(ctx context.Context, u urn.URN, token string) error {
	args := m.Called(ctx, u, token)
	return args.Error(0)
}
func (m *MockTokenStore) Unregister(ctx context.Context, u urn.URN, token string) error {
	args := m.Called(ctx, u, token)
	return args.Error(0)
}
func (m *MockTokenStore) Fetch(ctx context.Context, u urn.URN) ([]string, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockTokenStore) PruneTokens(ctx context.Context, tokens []string) ([]urn.URN, error) {
	args := m.Called(ctx, tokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]urn.URN), args.Error(1)
}

// --- Setup ---
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTokenAPI(t *testing.T) (*api.TokenAPI, *MockTokenStore) {
	t.Helper()
	mockStore := new(MockTokenStore)
	return api.NewTokenAPI(mockStore, discardLogger()), mockStore
}

// withUser simulates the auth middleware.
func withUser(req *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(req.Context(), userID)
	return req.WithContext(ctx)
}

func tokenBody(t *testing.T, token string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(api.TokenRequest{Token: token})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(body)
}

// --- Tests ---

func TestRegister(t *testing.T) {
	apiHandler, mockStore := setupTokenAPI(t)
	targetURN, _ := urn.Parse("urn:test:user:123")

	t.Run("Success", func(t *testing.T) {
		req := withUser(httptest.NewRequest("POST", "/api/v1/tokens", tokenBody(t, "fcm-token-abc")), targetURN.String())
		w := httptest.NewRecorder()

		mockStore.On("Register", mock.Anything, targetURN, "fcm-token-abc").Return(nil).Once()

		apiHandler.Register(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockStore.AssertExpectations(t)
	})

	t.Run("Rejects Empty Token", func(t *testing.T) {
		req := withUser(httptest.NewRequest("POST", "/api/v1/tokens", tokenBody(t, "")), targetURN.String())
		w := httptest.NewRecorder()

		apiHandler.Register(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Rejects Anonymous Caller", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/tokens", tokenBody(t, "fcm-token-abc"))
		w := httptest.NewRecorder()

		apiHandler.Register(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Storage Failure", func(t *testing.T) {
		req := withUser(httptest.NewRequest("POST", "/api/v1/tokens", tokenBody(t, "broken")), targetURN.String())
		w := httptest.NewRecorder()

		mockStore.On("Register", mock.Anything, targetURN, "broken").Return(errors.New("firestore down")).Once()

		apiHandler.Register(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestUnregister(t *testing.T) {
	apiHandler, mockStore := setupTokenAPI(t)
	targetURN, _ := urn.Parse("urn:test:user:123")

	t.Run("Storage failure is still a success", func(t *testing.T) {
		req := withUser(httptest.NewRequest("POST", "/api/v1/tokens/delete", tokenBody(t, "old")), targetURN.String())
		w := httptest.NewRecorder()

		mockStore.On("Unregister", mock.Anything, targetURN, "old").Return(errors.New("boom")).Once()

		apiHandler.Unregister(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockStore.AssertExpectations(t)
	})

	t.Run("Rejects Invalid JSON", func(t *testing.T) {
		req := withUser(httptest.NewRequest("POST", "/api/v1/tokens/delete", bytes.NewReader([]byte("{"))), targetURN.String())
		w := httptest.NewRecorder()

		apiHandler.Unregister(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
