package scheme

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/logging"
)

type fakeDevices struct {
	devices map[string]domain.Device
	err     error
}

func (f fakeDevices) GetByUID(ctx context.Context, uid string) (domain.Device, error) {
	if f.err != nil {
		return domain.Device{}, f.err
	}
	d, ok := f.devices[uid]
	if !ok {
		return domain.Device{}, domain.NotFoundf("device %s not found", uid)
	}
	return d, nil
}

func (f fakeDevices) Health(ctx context.Context) (domain.HealthStatus, error) {
	return domain.HealthStatus{Status: domain.HealthOK}, f.err
}

type fakeBuffers struct {
	buffers map[string]domain.Buffer
	err     error
}

func (f fakeBuffers) GetByUID(ctx context.Context, uid string) (domain.Buffer, error) {
	if f.err != nil {
		return domain.Buffer{}, f.err
	}
	b, ok := f.buffers[uid]
	if !ok {
		return domain.Buffer{}, domain.NotFoundf("buffer %s not found", uid)
	}
	return b, nil
}

func (f fakeBuffers) Health(ctx context.Context) (domain.HealthStatus, error) {
	return domain.HealthStatus{Status: domain.HealthOK}, f.err
}

func newTestService() *Service {
	devices := fakeDevices{devices: map[string]domain.Device{
		"device-1": {UID: "device-1", ClientUID: "client-1"},
		"device-2": {UID: "device-2", ClientUID: "client-2"},
	}}
	buffers := fakeBuffers{buffers: map[string]domain.Buffer{
		"buf-a": {UID: "buf-a", DeviceUID: "device-1"},
		"buf-b": {UID: "buf-b", DeviceUID: "device-1"},
		"buf-x": {UID: "buf-x", DeviceUID: "device-2"},
	}}
	return NewService(NewMemoryStore(), devices, buffers, logging.Nop())
}

func validScheme() domain.ConnectionScheme {
	return domain.ConnectionScheme{
		UsedBuffers:       []string{"buf-a", "buf-b"},
		BufferTransitions: map[string][]string{"buf-a": {"buf-b"}},
	}
}

func TestCreateSchemeRejectsEmptyGraph(t *testing.T) {
	svc := newTestService()
	caller := domain.ClientPrincipal("client-1")

	cases := []struct {
		name   string
		scheme domain.ConnectionScheme
	}{
		{"empty buffers and transitions", domain.ConnectionScheme{}},
		{"empty transitions", domain.ConnectionScheme{UsedBuffers: []string{"buf-a"}}},
		{"empty buffers", domain.ConnectionScheme{
			BufferTransitions: map[string][]string{"buf-a": {"buf-b"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateScheme(context.Background(), caller, tc.scheme)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.ErrValidation))
		})
	}
}

func TestCreateSchemeRejectsDanglingTransitionEndpoints(t *testing.T) {
	svc := newTestService()
	caller := domain.ClientPrincipal("client-1")

	_, err := svc.CreateScheme(context.Background(), caller, domain.ConnectionScheme{
		UsedBuffers:       []string{"buf-a"},
		BufferTransitions: map[string][]string{"buf-a": {"buf-b"}},
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrValidation))

	_, err = svc.CreateScheme(context.Background(), caller, domain.ConnectionScheme{
		UsedBuffers:       []string{"buf-b"},
		BufferTransitions: map[string][]string{"buf-a": {"buf-b"}},
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrValidation))
}

func TestCreateSchemeEnforcesBufferOwnership(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateScheme(context.Background(), domain.ClientPrincipal("client-1"), domain.ConnectionScheme{
		UsedBuffers:       []string{"buf-a", "buf-x"},
		BufferTransitions: map[string][]string{"buf-a": {"buf-x"}},
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization))
}

func TestCreateSchemeFailsClosedOnLookup(t *testing.T) {
	svc := newTestService()
	svc.buffers = fakeBuffers{err: domain.Transportf("buffer domain unreachable")}

	_, err := svc.CreateScheme(context.Background(), domain.ClientPrincipal("client-1"), validScheme())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization))
}

func TestCreateAndGetScheme(t *testing.T) {
	svc := newTestService()
	caller := domain.ClientPrincipal("client-1")

	created, err := svc.CreateScheme(context.Background(), caller, validScheme())
	require.NoError(t, err)
	require.NotEmpty(t, created.UID)
	assert.Equal(t, "client-1", created.ClientUID)

	got, err := svc.GetSchemeByUID(context.Background(), caller, created.UID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestGetSchemeByUIDIsTenantIsolated(t *testing.T) {
	svc := newTestService()

	created, err := svc.CreateScheme(context.Background(), domain.ClientPrincipal("client-1"), validScheme())
	require.NoError(t, err)

	_, err = svc.GetSchemeByUID(context.Background(), domain.ClientPrincipal("client-2"), created.UID)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization),
		"foreign client must get an authorization error, got %v", err)
}

func TestUpdateSchemeRevalidates(t *testing.T) {
	svc := newTestService()
	caller := domain.ClientPrincipal("client-1")

	created, err := svc.CreateScheme(context.Background(), caller, validScheme())
	require.NoError(t, err)

	created.BufferTransitions = map[string][]string{"buf-a": {"buf-missing"}}
	_, err = svc.UpdateScheme(context.Background(), caller, created)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrValidation))
}

func TestDeleteSchemeRequiresOwnership(t *testing.T) {
	svc := newTestService()
	owner := domain.ClientPrincipal("client-1")

	created, err := svc.CreateScheme(context.Background(), owner, validScheme())
	require.NoError(t, err)

	err = svc.DeleteScheme(context.Background(), domain.ClientPrincipal("client-2"), created.UID)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization))

	require.NoError(t, svc.DeleteScheme(context.Background(), owner, created.UID))
	_, err = svc.GetSchemeByUID(context.Background(), owner, created.UID)
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))
}

func TestRemoveBufferFromSchemesPrunesGraph(t *testing.T) {
	svc := newTestService()
	caller := domain.ClientPrincipal("client-1")

	created, err := svc.CreateScheme(context.Background(), caller, domain.ConnectionScheme{
		UsedBuffers: []string{"buf-a", "buf-b"},
		BufferTransitions: map[string][]string{
			"buf-a": {"buf-b"},
			"buf-b": {"buf-a"},
		},
	})
	require.NoError(t, err)

	touched := svc.RemoveBufferFromSchemes("buf-b")
	assert.Equal(t, 1, touched)

	got, err := svc.GetSchemeByUID(context.Background(), caller, created.UID)
	require.NoError(t, err)
	assert.Equal(t, []string{"buf-a"}, got.UsedBuffers)
	assert.NotContains(t, got.BufferTransitions, "buf-b")
	// buf-a's only destination was buf-b, so its entry is gone too.
	assert.NotContains(t, got.BufferTransitions, "buf-a")
}
