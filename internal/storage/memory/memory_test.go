package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_SetGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "cart")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "cart", "[]"))
	v, ok, err := s.Get(ctx, "cart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", v)
}

func TestStorage_FailWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("quota exceeded")

	s.FailWrites(boom)
	assert.ErrorIs(t, s.Set(ctx, "cart", "x"), boom)
	_, ok, _ := s.Get(ctx, "cart")
	assert.False(t, ok)

	s.FailWrites(nil)
	assert.NoError(t, s.Set(ctx, "cart", "x"))
	assert.Equal(t, 2, s.SetCalls())
}
