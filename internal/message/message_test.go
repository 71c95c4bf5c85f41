package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want bool
	}{
		{KindText, true},
		{KindVoice, true},
		{KindImage, true},
		{KindDocument, true},
		{Kind(""), false},
		{Kind("video"), false},
		{Kind("TEXT"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.kind.Valid())
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	m := New("session-1", KindText)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "session-1", m.SessionID)
	assert.Equal(t, KindText, m.Kind)
	assert.False(t, m.ReceivedAt.IsZero())

	// IDs must be unique across calls.
	assert.NotEqual(t, m.ID, New("session-1", KindText).ID)
}

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		m := New("session-1", KindVoice)
		require.NoError(t, m.Validate())
	})

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()
		m := New("session-1", Kind("sticker"))
		err := m.Validate()
		require.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("missing session", func(t *testing.T) {
		t.Parallel()
		m := New("", KindText)
		require.Error(t, m.Validate())
	})
}
