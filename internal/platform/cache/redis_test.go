package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPings(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	client, err := New(context.Background(), Options{Addr: mr.Addr(), Password: "s3cret"})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = New(context.Background(), Options{Addr: mr.Addr(), Password: "wrong"})
	require.ErrorContains(t, err, mr.Addr())
}

func TestQueueOptSharesInstance(t *testing.T) {
	opts := Options{Addr: "redis:6379", Password: "pw", DB: 2}
	q := opts.QueueOpt()
	assert.Equal(t, "redis:6379", q.Addr)
	assert.Equal(t, "pw", q.Password)
	assert.Equal(t, 2, q.DB)
}
