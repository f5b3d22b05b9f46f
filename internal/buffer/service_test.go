package buffer

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

func (f fakeDevices) GetByClient(ctx context.Context, clientUID string) ([]domain.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Device
	for _, d := range f.devices {
		if d.ClientUID == clientUID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f fakeDevices) Health(ctx context.Context) (domain.HealthStatus, error) {
	return domain.HealthStatus{Status: domain.HealthOK}, f.err
}

type fakeSchemes struct {
	schemes map[string]domain.ConnectionScheme
	err     error
}

func (f fakeSchemes) GetByUID(ctx context.Context, uid string) (domain.ConnectionScheme, error) {
	if f.err != nil {
		return domain.ConnectionScheme{}, f.err
	}
	cs, ok := f.schemes[uid]
	if !ok {
		return domain.ConnectionScheme{}, domain.NotFoundf("scheme %s not found", uid)
	}
	return cs, nil
}

func (f fakeSchemes) Health(ctx context.Context) (domain.HealthStatus, error) {
	return domain.HealthStatus{Status: domain.HealthOK}, f.err
}

type countingPurger struct {
	purged []string
}

func (p *countingPurger) PurgeBuffer(bufferUID string) int {
	p.purged = append(p.purged, bufferUID)
	return 1
}

type countingPruner struct {
	pruned []string
}

func (p *countingPruner) RemoveBufferFromSchemes(bufferUID string) int {
	p.pruned = append(p.pruned, bufferUID)
	return 1
}

// bufA is a fixed uid so the scheme fixture can reference the buffer the
// tests create.
const bufA = "6f2d7f6e-4242-4a2a-9b3b-000000000001"

func newTestService(purger MessagePurger) *Service {
	devices := fakeDevices{devices: map[string]domain.Device{
		"device-1": {UID: "device-1", ClientUID: "client-1"},
		"device-2": {UID: "device-2", ClientUID: "client-2"},
	}}
	schemes := fakeSchemes{schemes: map[string]domain.ConnectionScheme{
		"scheme-1": {UID: "scheme-1", ClientUID: "client-1", UsedBuffers: []string{bufA}},
	}}
	return NewService(NewMemoryStore(), devices, schemes, purger, logging.Nop())
}

func validBuffer() domain.Buffer {
	return domain.Buffer{DeviceUID: "device-1", MaxMessagesNumber: 10, MaxMessageSize: 256}
}

func TestCreateBufferValidation(t *testing.T) {
	svc := newTestService(nil)
	caller := domain.ClientPrincipal("client-1")

	cases := []struct {
		name   string
		mutate func(*domain.Buffer)
	}{
		{"missing device", func(b *domain.Buffer) { b.DeviceUID = "" }},
		{"zero max messages", func(b *domain.Buffer) { b.MaxMessagesNumber = 0 }},
		{"zero max size", func(b *domain.Buffer) { b.MaxMessageSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := validBuffer()
			tc.mutate(&b)
			_, err := svc.CreateBuffer(context.Background(), caller, b)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.ErrValidation))
		})
	}
}

func TestCreateBufferEnforcesDeviceOwnership(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.CreateBuffer(context.Background(), domain.ClientPrincipal("client-2"), validBuffer())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization))

	// A device may create buffers only on itself.
	_, err = svc.CreateBuffer(context.Background(), domain.DevicePrincipal("device-2"), validBuffer())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization))

	created, err := svc.CreateBuffer(context.Background(), domain.DevicePrincipal("device-1"), validBuffer())
	require.NoError(t, err)
	assert.NotEmpty(t, created.UID)
}

func TestCreateBufferFailsClosedOnDeviceLookup(t *testing.T) {
	svc := newTestService(nil)
	svc.devices = fakeDevices{err: domain.Transportf("device domain unreachable")}

	_, err := svc.CreateBuffer(context.Background(), domain.ClientPrincipal("client-1"), validBuffer())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization))
}

func TestUpdateBufferKeepsOwningDevice(t *testing.T) {
	svc := newTestService(nil)
	caller := domain.ClientPrincipal("client-1")

	created, err := svc.CreateBuffer(context.Background(), caller, validBuffer())
	require.NoError(t, err)

	moved := created
	moved.DeviceUID = "device-2"
	_, err = svc.UpdateBuffer(context.Background(), caller, moved)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrValidation))

	created.MaxMessageSize = 512
	updated, err := svc.UpdateBuffer(context.Background(), caller, created)
	require.NoError(t, err)
	assert.Equal(t, 512, updated.MaxMessageSize)
}

func TestDeleteBufferCascadesMessagesAndSchemes(t *testing.T) {
	purger := &countingPurger{}
	pruner := &countingPruner{}
	svc := newTestService(purger)
	svc.SetSchemePruner(pruner)
	caller := domain.ClientPrincipal("client-1")

	created, err := svc.CreateBuffer(context.Background(), caller, validBuffer())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBuffer(context.Background(), caller, created.UID))
	assert.Equal(t, []string{created.UID}, purger.purged)
	assert.Equal(t, []string{created.UID}, pruner.pruned)

	_, err = svc.GetBuffer(context.Background(), caller, created.UID)
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))
}

func TestGetBuffersBySchemeChecksSchemeOwnership(t *testing.T) {
	svc := newTestService(nil)
	caller := domain.ClientPrincipal("client-1")

	created, err := svc.CreateBuffer(context.Background(), caller, domain.Buffer{
		UID: bufA, DeviceUID: "device-1", MaxMessagesNumber: 10, MaxMessageSize: 256,
	})
	require.NoError(t, err)

	got, err := svc.GetBuffersByScheme(context.Background(), caller, "scheme-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, created.UID, got[0].UID)

	_, err = svc.GetBuffersByScheme(context.Background(), domain.ClientPrincipal("client-2"), "scheme-1")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrAuthorization))
}
