package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStatus()

	require.NoError(t, m.Set(ctx, "b1", FileStatus{Name: "z.txt", Status: Waiting}))
	require.NoError(t, m.Set(ctx, "b1", FileStatus{Name: "a.txt", Status: Waiting}))
	now := time.Now()
	require.NoError(t, m.Set(ctx, "b1", FileStatus{Name: "z.txt", Status: Success, Output: "z.epub", End: &now}))
	require.NoError(t, m.Set(ctx, "b2", FileStatus{Name: "other.pdf", Status: Error}))

	st, ok, err := m.Get(ctx, "b1", "z.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Success, st.Status)
	assert.Equal(t, "z.epub", st.Output)

	_, ok, err = m.Get(ctx, "missing", "z.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := m.List(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a.txt", list[0].Name)
	assert.Equal(t, "z.txt", list[1].Name)

	list, err = m.List(ctx, "none")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedisStatusKey(t *testing.T) {
	s := NewRedisStatusWithClient(nil, "", time.Hour)
	assert.Equal(t, "ebookconv:batch:42:files", s.key("42"))
}
