// Package payload turns a built notification request into the FCM HTTP v1
// message body.
package payload

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
)

// Notification is the visible part of the message.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Message is the FCM v1 message. Token is empty until the dispatch engine
// targets a device.
type Message struct {
	Token        string            `json:"token"`
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data"`
}

// Payload is the request body posted to the gateway.
type Payload struct {
	Message Message `json:"message"`
}

// ForToken returns a copy of the payload addressed to one device. The data
// map is shared and must be treated as read-only.
func (p Payload) ForToken(token string) Payload {
	p.Message.Token = token
	return p
}

// Assembler is a pure function of the request and its static configuration.
type Assembler struct {
	locales     *notify.LocaleSet
	clickAction string
}

func NewAssembler(locales *notify.LocaleSet, clickAction string) *Assembler {
	return &Assembler{locales: locales, clickAction: clickAction}
}

// Assemble builds the payload. The visible notification uses the default
// locale; every titled locale is also exposed as title_<l>/body_<l> data so
// the client can pick its own language.
func (a *Assembler) Assemble(req *notify.NotificationRequest) Payload {
	def := a.locales.Default()
	data := make(map[string]string)

	for _, l := range req.Locales(a.locales) {
		data["title_"+string(l)] = req.Title[l]
		data["body_"+string(l)] = req.BodyFor(l)
	}
	for k, v := range req.Metadata.ExtraFields {
		data[k] = stringify(v)
	}

	// FCM data values cannot be null.
	data["icon"] = ""
	if req.Metadata.Icon != nil {
		data["icon"] = *req.Metadata.Icon
	}

	if rel := req.Metadata.Related; rel != nil && !rel.IsZero() {
		data["click_action"] = a.clickAction
		data["screen"] = ScreenName(rel.Type)
		data["id"] = rel.ID
	}

	return Payload{
		Message: Message{
			Notification: Notification{
				Title: req.Title[def],
				Body:  req.BodyFor(def),
			},
			Data: data,
		},
	}
}

// ScreenName reduces a qualified type name such as App\Models\Order to its
// lower-cased short name.
func ScreenName(entityType string) string {
	short := entityType
	if i := strings.LastIndexAny(entityType, `\/.:`); i >= 0 {
		short = entityType[i+1:]
	}
	return strings.ToLower(short)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
