package api

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/tinywideclouds/go-broadcast-service/pkg/registry"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

type TokenAPI struct {
	Store  registry.TokenStore
	Logger *slog.Logger
}

func NewTokenAPI(store registry.TokenStore, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:  store,
		Logger: logger.With("component", "TokenAPI"),
	}
}

type TokenRequest struct {
	Token string `json:"token"`
}

// Register adds a device token for the authenticated user.
func (api *TokenAPI) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userURN, req, ok := api.decode(w, r)
	if !ok {
		return
	}

	if err := api.Store.Register(ctx, userURN, req.Token); err != nil {
		api.Logger.Error("Failed to register device token", "user", userURN, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unregister removes a device token. Storage failures are logged but the
// call still succeeds; unregistering is idempotent from the client's side.
func (api *TokenAPI) Unregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userURN, req, ok := api.decode(w, r)
	if !ok {
		return
	}

	if err := api.Store.Unregister(ctx, userURN, req.Token); err != nil {
		api.Logger.Warn("Failed to unregister device token", "user", userURN, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *TokenAPI) decode(w http.ResponseWriter, r *http.Request) (urn.URN, TokenRequest, bool) {
	var req TokenRequest

	userID, ok := middleware.GetUserHandleFromContext(r.Context())
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return urn.URN{}, req, false
	}
	userURN, err := urn.Parse(userID)
	if err != nil {
		response.WriteJSONError(w, http.StatusUnauthorized, "invalid user identity")
		return urn.URN{}, req, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return urn.URN{}, req, false
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return urn.URN{}, req, false
	}
	return userURN, req, true
}
