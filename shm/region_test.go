package shm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAttachRoundTrip(t *testing.T) {
	service := &Allocator{WorkerMode: false}
	worker := &Allocator{WorkerMode: true}

	region, err := service.Create(128)
	require.NoError(t, err)
	require.True(t, region.UnlinkOnDispose())
	require.GreaterOrEqual(t, region.Size(), int64(128))

	copy(region.Bytes(), []byte("hello world"))

	attached, err := worker.Attach(region.Name(), 128)
	require.NoError(t, err)
	require.False(t, attached.UnlinkOnDispose())
	require.Equal(t, "hello world", string(attached.Bytes()[:11]))

	require.NoError(t, attached.Dispose())
	require.NoError(t, region.Dispose())
}

func TestAttachMissingReturnsNotFoundError(t *testing.T) {
	worker := &Allocator{WorkerMode: true}
	_, err := worker.Attach("appose-shm-does-not-exist", 16)
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestDisposeIsIdempotent(t *testing.T) {
	service := &Allocator{}
	region, err := service.Create(64)
	require.NoError(t, err)
	require.NoError(t, region.Dispose())
	require.NoError(t, region.Dispose())
}
