package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/logging"
)

const (
	clientOne = "0b7a41f2-0001-4c6e-8a88-000000000001"
	clientTwo = "0b7a41f2-0002-4c6e-8a88-000000000002"
)

func TestCreateDevice(t *testing.T) {
	svc := NewService(NewMemoryStore(), logging.Nop())
	caller := domain.ClientPrincipal(clientOne)

	created, err := svc.CreateDevice(context.Background(), caller, domain.Device{Name: "sensor"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.UID)
	assert.Equal(t, clientOne, created.ClientUID)

	_, err = svc.CreateDevice(context.Background(), caller, domain.Device{UID: created.UID})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAlreadyExists))
}

func TestCreateDeviceRejectsForeignClient(t *testing.T) {
	svc := NewService(NewMemoryStore(), logging.Nop())

	_, err := svc.CreateDevice(context.Background(), domain.ClientPrincipal(clientOne),
		domain.Device{ClientUID: clientTwo})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization))

	_, err = svc.CreateDevice(context.Background(), domain.DevicePrincipal("some-device"), domain.Device{})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization))
}

func TestGetDeviceAuthorization(t *testing.T) {
	svc := NewService(NewMemoryStore(), logging.Nop())
	owner := domain.ClientPrincipal(clientOne)

	created, err := svc.CreateDevice(context.Background(), owner, domain.Device{})
	require.NoError(t, err)

	got, err := svc.GetDevice(context.Background(), owner, created.UID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	// The device itself may read its own record.
	got, err = svc.GetDevice(context.Background(), domain.DevicePrincipal(created.UID), created.UID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = svc.GetDevice(context.Background(), domain.ClientPrincipal(clientTwo), created.UID)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization))

	_, err = svc.GetDevice(context.Background(), domain.Principal{}, created.UID)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization))
}

func TestGetDevicesByClientListsOnlyOwn(t *testing.T) {
	svc := NewService(NewMemoryStore(), logging.Nop())
	ctx := context.Background()

	_, err := svc.CreateDevice(ctx, domain.ClientPrincipal(clientOne), domain.Device{Name: "a"})
	require.NoError(t, err)
	_, err = svc.CreateDevice(ctx, domain.ClientPrincipal(clientOne), domain.Device{Name: "b"})
	require.NoError(t, err)
	_, err = svc.CreateDevice(ctx, domain.ClientPrincipal(clientTwo), domain.Device{Name: "c"})
	require.NoError(t, err)

	own, err := svc.GetDevicesByClient(ctx, domain.ClientPrincipal(clientOne))
	require.NoError(t, err)
	assert.Len(t, own, 2)
	for _, d := range own {
		assert.Equal(t, clientOne, d.ClientUID)
	}
}

func TestDeleteDevice(t *testing.T) {
	svc := NewService(NewMemoryStore(), logging.Nop())
	owner := domain.ClientPrincipal(clientOne)

	created, err := svc.CreateDevice(context.Background(), owner, domain.Device{})
	require.NoError(t, err)

	err = svc.DeleteDevice(context.Background(), domain.ClientPrincipal(clientTwo), created.UID)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization))

	require.NoError(t, svc.DeleteDevice(context.Background(), owner, created.UID))
	err = svc.DeleteDevice(context.Background(), owner, created.UID)
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))
}
