package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/tinywideclouds/go-broadcast-service/internal/broadcast"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
	"github.com/tinywideclouds/go-broadcast-service/pkg/registry"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// Broadcaster is the send entry point the API drives.
type Broadcaster interface {
	Send(ctx context.Context, src notify.RecipientSource, req *notify.NotificationRequest, opts ...broadcast.SendOption) (*broadcast.Result, error)
}

type NotificationAPI struct {
	Tokens     registry.TokenStore
	Service    Broadcaster
	Locales    *notify.LocaleSet
	Translator notify.Translator
	Logger     *slog.Logger
}

func NewNotificationAPI(tokens registry.TokenStore, service Broadcaster, locales *notify.LocaleSet, translator notify.Translator, logger *slog.Logger) *NotificationAPI {
	return &NotificationAPI{
		Tokens:     tokens,
		Service:    service,
		Locales:    locales,
		Translator: translator,
		Logger:     logger.With("component", "NotificationAPI"),
	}
}

type RelatedEntity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// SendNotificationRequest is the body of POST /api/v1/notifications.
// Literal title/body maps win over translation keys for the locales they
// name.
type SendNotificationRequest struct {
	Recipients  []string          `json:"recipients"`
	Title       map[string]string `json:"title"`
	Body        map[string]string `json:"body"`
	TitleKey    string            `json:"title_key"`
	BodyKey     string            `json:"body_key"`
	Vars        map[string]string `json:"vars"`
	Icon        *string           `json:"icon"`
	ExtraFields map[string]any    `json:"extra_fields"`
	Related     *RelatedEntity    `json:"related"`
	Save        *bool             `json:"save"`
	Dispatch    *bool             `json:"dispatch"`
}

type SendNotificationResponse struct {
	Recipients int      `json:"recipients"`
	Tokens     int      `json:"tokens"`
	Saved      bool     `json:"saved"`
	Jobs       []string `json:"jobs"`
}

// Send builds the request, resolves recipients through the token registry
// and hands both to the broadcast service.
func (api *NotificationAPI) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body SendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(body.Recipients) == 0 {
		response.WriteJSONError(w, http.StatusBadRequest, "missing recipients")
		return
	}

	users := make([]urn.URN, 0, len(body.Recipients))
	for _, raw := range body.Recipients {
		u, err := urn.Parse(raw)
		if err != nil {
			response.WriteJSONError(w, http.StatusBadRequest, "invalid recipient urn: "+raw)
			return
		}
		users = append(users, u)
	}

	req, err := api.build(body)
	if err != nil {
		api.writeError(w, err)
		return
	}
	if len(req.Title) == 0 {
		response.WriteJSONError(w, http.StatusBadRequest, "notification has no title")
		return
	}

	recipients, err := registry.Recipients(ctx, api.Tokens, users)
	if err != nil {
		api.Logger.Error("Failed to load recipient devices", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "failed to load recipients")
		return
	}

	var opts []broadcast.SendOption
	if body.Save != nil && !*body.Save {
		opts = append(opts, broadcast.WithoutSave())
	}
	if body.Dispatch != nil && !*body.Dispatch {
		opts = append(opts, broadcast.WithoutDispatch())
	}

	res, err := api.Service.Send(ctx, notify.List(recipients), req, opts...)
	if err != nil {
		api.writeError(w, err)
		return
	}

	api.Logger.Info("Notification accepted", "recipients", res.Recipients, "tokens", res.Tokens, "jobs", len(res.Jobs))
	response.WriteJSON(w, http.StatusAccepted, SendNotificationResponse{
		Recipients: res.Recipients,
		Tokens:     res.Tokens,
		Saved:      res.Saved,
		Jobs:       res.Jobs,
	})
}

func (api *NotificationAPI) build(body SendNotificationRequest) (*notify.NotificationRequest, error) {
	b := notify.NewBuilder(api.Locales, api.Translator)

	if body.TitleKey != "" {
		b.SetTitleForAllLocales(body.TitleKey, body.Vars)
	}
	if body.BodyKey != "" {
		b.SetBodyForAllLocales(body.BodyKey, body.Vars)
	}
	for _, l := range sortedKeys(body.Title) {
		b.SetTitle(notify.Literal(body.Title[l]), notify.Locale(l))
	}
	for _, l := range sortedKeys(body.Body) {
		b.SetBody(notify.Literal(body.Body[l]), notify.Locale(l))
	}

	if body.Icon != nil {
		b.SetIcon(notify.Literal(*body.Icon))
	}
	if body.ExtraFields != nil {
		b.SetExtraFields(body.ExtraFields)
	}
	if body.Related != nil {
		b.SetRelated(notify.EntityRef{Type: body.Related.Type, ID: body.Related.ID})
	}
	return b.Build()
}

func (api *NotificationAPI) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notify.ErrInvalidLocale), errors.Is(err, notify.ErrInvalidRecipient):
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, notify.ErrMissingCredentialConfig):
		api.Logger.Error("Gateway is not configured", "err", err)
		response.WriteJSONError(w, http.StatusServiceUnavailable, "push gateway is not configured")
	default:
		api.Logger.Error("Failed to send notification", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "failed to send notification")
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
