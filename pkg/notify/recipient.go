package notify

import "slices"

// Recipient is an entity that notifications are addressed to.
type Recipient interface {
	Entity
}

// TokenHolder is the capability a recipient needs to receive pushes.
type TokenHolder interface {
	DeviceTokens() []string
}

// RecipientSource is one of Single, List or Page.
type RecipientSource interface {
	recipients() []Recipient
}

// Single addresses one recipient.
type Single struct {
	Recipient Recipient
}

func (s Single) recipients() []Recipient {
	if s.Recipient == nil {
		return nil
	}
	return []Recipient{s.Recipient}
}

// List addresses an ordered list of recipients.
type List []Recipient

func (l List) recipients() []Recipient { return slices.Clone(l) }

// Page is one page of a paginated recipient query. Only the entities of the
// current page are addressed.
type Page struct {
	Items   []Recipient
	Number  int
	PerPage int
	Total   int
}

func (p Page) recipients() []Recipient { return slices.Clone(p.Items) }

// Resolve flattens a source into an ordered sequence of recipients. Entities
// are not deduplicated; deduplication happens on tokens.
func Resolve(src RecipientSource) []Recipient {
	if src == nil {
		return nil
	}
	return src.recipients()
}

// ExtractTokens collects the device tokens of every recipient, keeping the
// first occurrence of each token. If any recipient lacks the TokenHolder
// capability no tokens are returned.
func ExtractTokens(recipients []Recipient) ([]string, error) {
	seen := make(map[string]struct{})
	var tokens []string
	for i, r := range recipients {
		holder, ok := r.(TokenHolder)
		if !ok {
			ref := EntityRef{}
			if r != nil {
				ref = r.Ref()
			}
			return nil, &InvalidRecipientError{Index: i, Ref: ref}
		}
		for _, t := range holder.DeviceTokens() {
			if _, dup := seen[t]; dup || t == "" {
				continue
			}
			seen[t] = struct{}{}
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}

// Device is a recipient whose tokens were loaded up front, typically from a
// token registry.
type Device struct {
	Owner  EntityRef
	Tokens []string
}

// Ref implements Entity.
func (d Device) Ref() EntityRef { return d.Owner }

// DeviceTokens implements TokenHolder.
func (d Device) DeviceTokens() []string { return d.Tokens }
