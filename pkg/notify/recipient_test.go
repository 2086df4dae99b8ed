package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
)

// anonymous has no device tokens.
type anonymous struct{}

func (anonymous) Ref() notify.EntityRef { return notify.Ref("guest", 1) }

func device(id string, tokens ...string) notify.Device {
	return notify.Device{Owner: notify.Ref("user", id), Tokens: tokens}
}

func TestResolve(t *testing.T) {
	a := device("a", "t1")
	b := device("b", "t2")

	testCases := []struct {
		name     string
		source   notify.RecipientSource
		expected []notify.Recipient
	}{
		{name: "Single", source: notify.Single{Recipient: a}, expected: []notify.Recipient{a}},
		{name: "Single nil", source: notify.Single{}, expected: nil},
		{name: "List keeps order", source: notify.List{b, a}, expected: []notify.Recipient{b, a}},
		{
			name:     "Page unwraps current items",
			source:   notify.Page{Items: []notify.Recipient{a, b}, Number: 2, PerPage: 2, Total: 10},
			expected: []notify.Recipient{a, b},
		},
		{name: "Nil source", source: nil, expected: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, notify.Resolve(tc.source))
		})
	}
}

func TestExtractTokens(t *testing.T) {
	t.Run("Deduplicates across recipients in first-seen order", func(t *testing.T) {
		recipients := notify.Resolve(notify.List{
			device("A", "t1", "t2"),
			device("B", "t2", "t3"),
		})

		tokens, err := notify.ExtractTokens(recipients)
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2", "t3"}, tokens)
	})

	t.Run("Same recipient twice yields its tokens once", func(t *testing.T) {
		a := device("A", "t1")
		tokens, err := notify.ExtractTokens([]notify.Recipient{a, a})
		require.NoError(t, err)
		assert.Equal(t, []string{"t1"}, tokens)
	})

	t.Run("Recipient without capability fails the whole call", func(t *testing.T) {
		recipients := []notify.Recipient{device("A", "t1"), anonymous{}}

		tokens, err := notify.ExtractTokens(recipients)

		var recipientErr *notify.InvalidRecipientError
		require.ErrorAs(t, err, &recipientErr)
		assert.ErrorIs(t, err, notify.ErrInvalidRecipient)
		assert.Equal(t, 1, recipientErr.Index)
		assert.Nil(t, tokens)
	})

	t.Run("No recipients means no tokens", func(t *testing.T) {
		tokens, err := notify.ExtractTokens(nil)
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})
}
