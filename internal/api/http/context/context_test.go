package context

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestManager(t *testing.T) {
	m := NewManager()

	t.Run("roundtrip", func(t *testing.T) {
		userID := uuid.New()
		ctx := m.SetUserIDToContext(context.Background(), userID)

		got, ok := m.GetUserIDFromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, userID, got)
	})

	t.Run("unset", func(t *testing.T) {
		got, ok := m.GetUserIDFromContext(context.Background())
		assert.False(t, ok)
		assert.Equal(t, uuid.Nil, got)
	})

	t.Run("nil user id", func(t *testing.T) {
		ctx := m.SetUserIDToContext(context.Background(), uuid.Nil)

		_, ok := m.GetUserIDFromContext(ctx)
		assert.False(t, ok)
	})
}
