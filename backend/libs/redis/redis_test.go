package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDisabled(t *testing.T) {
	_, err := Open(context.Background(), Options{Addr: "  "})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestOpenAndPing(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Open(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, Pinger{Client: client}.PingContext(context.Background()))

	mr.Close()
	assert.Error(t, Pinger{Client: client}.PingContext(context.Background()))
}

func TestOpenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}
