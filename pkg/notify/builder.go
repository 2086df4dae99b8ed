package notify

import (
	"errors"
	"maps"
)

// Translator looks up a translation key for one locale.
type Translator interface {
	Translate(key string, vars map[string]string, locale Locale) string
}

// Entity is anything that can be referenced polymorphically.
type Entity interface {
	Ref() EntityRef
}

// Builder accumulates a draft NotificationRequest. Mutators return the
// builder for chaining. A mutator that fails leaves the draft untouched and
// records its error; Err and Build report every recorded error.
//
// Values are resolved when the mutator is called, never at send time.
type Builder struct {
	locales    *LocaleSet
	translator Translator

	title map[Locale]string
	body  map[Locale]string
	meta  Metadata
	errs  []error
}

// NewBuilder starts an empty draft. translator may be nil, in which case the
// *ForAllLocales setters store the key itself.
func NewBuilder(locales *LocaleSet, translator Translator) *Builder {
	return &Builder{
		locales:    locales,
		translator: translator,
		title:      make(map[Locale]string),
		body:       make(map[Locale]string),
	}
}

// SetTitle stores a title for locale; an empty locale means the default.
// An unsupported locale is recorded rather than returned: it surfaces from
// Err and makes the later Build fail with an *InvalidLocaleError.
func (b *Builder) SetTitle(v Value, locale Locale) *Builder {
	return b.setText(b.title, v, locale)
}

// SetBody stores a body for locale with the same locale handling as
// SetTitle.
func (b *Builder) SetBody(v Value, locale Locale) *Builder {
	return b.setText(b.body, v, locale)
}

func (b *Builder) setText(dst map[Locale]string, v Value, locale Locale) *Builder {
	resolved, err := b.locales.Resolve(locale)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	dst[resolved] = resolveValue(v)
	return b
}

// SetTitleForAllLocales fills the title of every configured locale from a
// translation key.
func (b *Builder) SetTitleForAllLocales(key string, vars map[string]string) *Builder {
	b.translateAll(b.title, key, vars)
	return b
}

// SetBodyForAllLocales fills the body of every configured locale from a
// translation key.
func (b *Builder) SetBodyForAllLocales(key string, vars map[string]string) *Builder {
	b.translateAll(b.body, key, vars)
	return b
}

func (b *Builder) translateAll(dst map[Locale]string, key string, vars map[string]string) {
	for _, l := range b.locales.All() {
		if b.translator == nil {
			dst[l] = key
			continue
		}
		dst[l] = b.translator.Translate(key, vars, l)
	}
}

// SetIcon sets the icon carried in the payload data.
func (b *Builder) SetIcon(v Value) *Builder {
	icon := resolveValue(v)
	b.meta.Icon = &icon
	return b
}

// SetExtraFields replaces the extra data fields.
func (b *Builder) SetExtraFields(fields map[string]any) *Builder {
	b.meta.ExtraFields = cloneFields(fields)
	return b
}

// SetExtraFieldsFunc is SetExtraFields with a value computed immediately.
func (b *Builder) SetExtraFieldsFunc(fn func() map[string]any) *Builder {
	if fn == nil {
		return b
	}
	return b.SetExtraFields(fn())
}

// SetRelatedEntity links the notification to an entity. A nil entity is
// ignored.
func (b *Builder) SetRelatedEntity(e Entity) *Builder {
	if e == nil {
		return b
	}
	return b.SetRelated(e.Ref())
}

// SetRelated links the notification to a reference. A zero reference is
// ignored.
func (b *Builder) SetRelated(ref EntityRef) *Builder {
	if ref.IsZero() {
		return b
	}
	b.meta.Related = &ref
	return b
}

// Err returns the errors recorded by failed mutators, joined.
func (b *Builder) Err() error {
	return errors.Join(b.errs...)
}

// Build returns a snapshot of the draft. Later mutations of the builder do
// not affect it. Body entries for locales without a title are dropped since
// they can never be delivered.
func (b *Builder) Build() (*NotificationRequest, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	req := &NotificationRequest{
		Title:    maps.Clone(b.title),
		Body:     make(map[Locale]string, len(b.body)),
		Metadata: b.meta.clone(),
	}
	for l, text := range b.body {
		if _, ok := req.Title[l]; ok {
			req.Body[l] = text
		}
	}
	return req, nil
}

func resolveValue(v Value) string {
	if v == nil {
		return ""
	}
	return v.resolve()
}
