// Package notify contains the domain model for localized push notifications:
// the request builder, recipient resolution, and the contracts for the
// persistence and task queue collaborators.
package notify

import (
	"fmt"
	"maps"
	"slices"
)

// EntityRef is a polymorphic reference to an application entity.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Ref builds an EntityRef, formatting the id with fmt.Sprint.
func Ref(entityType string, id any) EntityRef {
	return EntityRef{Type: entityType, ID: fmt.Sprint(id)}
}

func (r EntityRef) String() string {
	return r.Type + ":" + r.ID
}

// IsZero reports whether either half of the reference is missing.
func (r EntityRef) IsZero() bool {
	return r.Type == "" || r.ID == ""
}

// Metadata is the non-text part of a notification.
type Metadata struct {
	Icon        *string        `json:"icon,omitempty"`
	ExtraFields map[string]any `json:"extra_fields,omitempty"`
	Related     *EntityRef     `json:"related,omitempty"`
}

// NotificationRequest is the immutable result of Builder.Build. Every key of
// Title and Body is a supported locale and Body keys are a subset of Title
// keys.
type NotificationRequest struct {
	Title    map[Locale]string `json:"title"`
	Body     map[Locale]string `json:"body"`
	Metadata Metadata          `json:"metadata"`
}

// BodyFor returns the body for a locale, or "" when none was set.
func (r *NotificationRequest) BodyFor(l Locale) string {
	return r.Body[l]
}

// Locales returns the locales the request carries a title for, in the
// order of the given set.
func (r *NotificationRequest) Locales(set *LocaleSet) []Locale {
	var out []Locale
	for _, l := range set.All() {
		if _, ok := r.Title[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (m Metadata) clone() Metadata {
	out := Metadata{ExtraFields: cloneFields(m.ExtraFields)}
	if m.Icon != nil {
		icon := *m.Icon
		out.Icon = &icon
	}
	if m.Related != nil {
		related := *m.Related
		out.Related = &related
	}
	return out
}

// cloneFields copies extra fields down through nested maps and slices, so a
// built request shares no mutable state with the caller.
func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]string:
		return maps.Clone(t)
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}

// Job is one unit of asynchronous dispatch work: an outer chunk of device
// tokens together with the request they should receive.
type Job struct {
	ID      string              `json:"id"`
	Tokens  []string            `json:"tokens"`
	Request NotificationRequest `json:"request"`
}
