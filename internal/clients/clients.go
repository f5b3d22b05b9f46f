// Package clients provides typed clients for every mesh domain, built on the
// rpc substrate. They live in one package so domain services can depend on
// each other's bus contracts without importing each other's implementations.
package clients

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/logging"
	"github.com/connmesh/connmesh/internal/rpc"
)

// Auth calls the auth domain, which owns client identities and client tokens.
type Auth struct {
	rpc *rpc.Client
}

func NewAuth(sourceService string, pub message.Publisher, logger logging.ServiceLogger, opts ...rpc.ClientOption) *Auth {
	return &Auth{rpc: rpc.NewClient(rpc.DomainAuth, sourceService, pub, logger, opts...)}
}

// RPC exposes the underlying client so its reply handler can be wired to a
// bus node.
func (a *Auth) RPC() *rpc.Client { return a.rpc }

// ValidateToken verifies a client token and returns the client uid it
// belongs to.
func (a *Auth) ValidateToken(ctx context.Context, token string) (string, error) {
	resp, err := rpc.Call[domain.ValidateTokenResponse](ctx, a.rpc, domain.KindAuthValidateToken,
		domain.ValidateTokenRequest{Token: token})
	if err != nil {
		return "", err
	}
	return resp.UID, nil
}

// ExtractUID reads the client uid out of a token without verifying it.
func (a *Auth) ExtractUID(ctx context.Context, token string) (string, error) {
	resp, err := rpc.Call[domain.ExtractUIDResponse](ctx, a.rpc, domain.KindAuthExtractUID,
		domain.ExtractUIDRequest{Token: token})
	if err != nil {
		return "", err
	}
	return resp.UID, nil
}

// Health checks the auth domain over the bus.
func (a *Auth) Health(ctx context.Context) (domain.HealthStatus, error) {
	return rpc.Call[domain.HealthStatus](ctx, a.rpc, domain.KindHealthCheck, nil)
}

// DeviceAuth calls the device-auth domain, which owns device tokens.
type DeviceAuth struct {
	rpc *rpc.Client
}

func NewDeviceAuth(sourceService string, pub message.Publisher, logger logging.ServiceLogger, opts ...rpc.ClientOption) *DeviceAuth {
	return &DeviceAuth{rpc: rpc.NewClient(rpc.DomainDeviceAuth, sourceService, pub, logger, opts...)}
}

func (d *DeviceAuth) RPC() *rpc.Client { return d.rpc }

// ValidateToken verifies a device token and returns the device uid it
// belongs to.
func (d *DeviceAuth) ValidateToken(ctx context.Context, token string) (string, error) {
	resp, err := rpc.Call[domain.ValidateTokenResponse](ctx, d.rpc, domain.KindDeviceAuthValidateToken,
		domain.ValidateTokenRequest{Token: token})
	if err != nil {
		return "", err
	}
	return resp.UID, nil
}

func (d *DeviceAuth) ExtractUID(ctx context.Context, token string) (string, error) {
	resp, err := rpc.Call[domain.ExtractUIDResponse](ctx, d.rpc, domain.KindDeviceAuthExtractUID,
		domain.ExtractUIDRequest{Token: token})
	if err != nil {
		return "", err
	}
	return resp.UID, nil
}

func (d *DeviceAuth) Health(ctx context.Context) (domain.HealthStatus, error) {
	return rpc.Call[domain.HealthStatus](ctx, d.rpc, domain.KindHealthCheck, nil)
}

// Device calls the device domain.
type Device struct {
	rpc *rpc.Client
}

func NewDevice(sourceService string, pub message.Publisher, logger logging.ServiceLogger, opts ...rpc.ClientOption) *Device {
	return &Device{rpc: rpc.NewClient(rpc.DomainDevice, sourceService, pub, logger, opts...)}
}

func (d *Device) RPC() *rpc.Client { return d.rpc }

func (d *Device) GetByUID(ctx context.Context, deviceUID string) (domain.Device, error) {
	resp, err := rpc.Call[domain.GetDeviceByUIDResponse](ctx, d.rpc, domain.KindDeviceGetByUID,
		domain.GetDeviceByUIDRequest{DeviceUID: deviceUID})
	if err != nil {
		return domain.Device{}, err
	}
	return resp.Device, nil
}

func (d *Device) GetByClient(ctx context.Context, clientUID string) ([]domain.Device, error) {
	resp, err := rpc.Call[domain.GetDevicesByClientResponse](ctx, d.rpc, domain.KindDeviceGetByClient,
		domain.GetDevicesByClientRequest{ClientUID: clientUID})
	if err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

func (d *Device) Health(ctx context.Context) (domain.HealthStatus, error) {
	return rpc.Call[domain.HealthStatus](ctx, d.rpc, domain.KindHealthCheck, nil)
}

// Buffer calls the buffer domain.
type Buffer struct {
	rpc *rpc.Client
}

func NewBuffer(sourceService string, pub message.Publisher, logger logging.ServiceLogger, opts ...rpc.ClientOption) *Buffer {
	return &Buffer{rpc: rpc.NewClient(rpc.DomainBuffer, sourceService, pub, logger, opts...)}
}

func (b *Buffer) RPC() *rpc.Client { return b.rpc }

func (b *Buffer) GetByUID(ctx context.Context, bufferUID string) (domain.Buffer, error) {
	resp, err := rpc.Call[domain.GetBufferByUIDResponse](ctx, b.rpc, domain.KindBufferGetByUID,
		domain.GetBufferByUIDRequest{BufferUID: bufferUID})
	if err != nil {
		return domain.Buffer{}, err
	}
	return resp.Buffer, nil
}

func (b *Buffer) GetByDevice(ctx context.Context, deviceUID string) ([]domain.Buffer, error) {
	resp, err := rpc.Call[domain.GetBuffersByDeviceResponse](ctx, b.rpc, domain.KindBufferGetByDevice,
		domain.GetBuffersByDeviceRequest{DeviceUID: deviceUID})
	if err != nil {
		return nil, err
	}
	return resp.Buffers, nil
}

func (b *Buffer) GetByScheme(ctx context.Context, schemeUID string) ([]domain.Buffer, error) {
	resp, err := rpc.Call[domain.GetBuffersBySchemeResponse](ctx, b.rpc, domain.KindBufferGetByScheme,
		domain.GetBuffersBySchemeRequest{SchemeUID: schemeUID})
	if err != nil {
		return nil, err
	}
	return resp.Buffers, nil
}

func (b *Buffer) Health(ctx context.Context) (domain.HealthStatus, error) {
	return rpc.Call[domain.HealthStatus](ctx, b.rpc, domain.KindHealthCheck, nil)
}

// Scheme calls the connection-scheme domain.
type Scheme struct {
	rpc *rpc.Client
}

func NewScheme(sourceService string, pub message.Publisher, logger logging.ServiceLogger, opts ...rpc.ClientOption) *Scheme {
	return &Scheme{rpc: rpc.NewClient(rpc.DomainScheme, sourceService, pub, logger, opts...)}
}

func (s *Scheme) RPC() *rpc.Client { return s.rpc }

func (s *Scheme) GetByUID(ctx context.Context, schemeUID string) (domain.ConnectionScheme, error) {
	resp, err := rpc.Call[domain.GetSchemeByUIDResponse](ctx, s.rpc, domain.KindSchemeGetByUID,
		domain.GetSchemeByUIDRequest{SchemeUID: schemeUID})
	if err != nil {
		return domain.ConnectionScheme{}, err
	}
	return resp.Scheme, nil
}

// GetByBuffer returns every scheme whose used buffer set contains the buffer.
func (s *Scheme) GetByBuffer(ctx context.Context, bufferUID string) ([]domain.ConnectionScheme, error) {
	resp, err := rpc.Call[domain.GetSchemesByBufferResponse](ctx, s.rpc, domain.KindSchemeGetByBuffer,
		domain.GetSchemesByBufferRequest{BufferUID: bufferUID})
	if err != nil {
		return nil, err
	}
	return resp.Schemes, nil
}

func (s *Scheme) Health(ctx context.Context) (domain.HealthStatus, error) {
	return rpc.Call[domain.HealthStatus](ctx, s.rpc, domain.KindHealthCheck, nil)
}
