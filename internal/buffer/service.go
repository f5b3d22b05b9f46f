package buffer

import (
	"context"
	"time"

	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/ids"
	"github.com/connmesh/connmesh/internal/platform/logging"
	"github.com/connmesh/connmesh/internal/rpc"
)

const ServiceName = "buffer-service"

// MessagePurger removes every message sitting in a buffer. Buffer deletion
// cascades through it; a nil purger skips the cascade.
type MessagePurger interface {
	PurgeBuffer(bufferUID string) int
}

// SchemePruner drops a deleted buffer from every connection scheme that
// references it. Nil skips the pruning.
type SchemePruner interface {
	RemoveBufferFromSchemes(bufferUID string) int
}

// DeviceDirectory is the slice of the device client the buffer service
// consumes.
type DeviceDirectory interface {
	GetByUID(ctx context.Context, deviceUID string) (domain.Device, error)
	GetByClient(ctx context.Context, clientUID string) ([]domain.Device, error)
	Health(ctx context.Context) (domain.HealthStatus, error)
}

// SchemeDirectory is the slice of the scheme client the buffer service
// consumes.
type SchemeDirectory interface {
	GetByUID(ctx context.Context, schemeUID string) (domain.ConnectionScheme, error)
	Health(ctx context.Context) (domain.HealthStatus, error)
}

// Service implements the buffer domain. Device ownership is resolved over
// the bus through the device client, scheme membership through the scheme
// client.
type Service struct {
	store   Store
	devices DeviceDirectory
	schemes SchemeDirectory
	purger  MessagePurger
	pruner  SchemePruner
	logger  logging.ServiceLogger
}

func NewService(store Store, devices DeviceDirectory, schemes SchemeDirectory, purger MessagePurger, logger logging.ServiceLogger) *Service {
	return &Service{
		store:   store,
		devices: devices,
		schemes: schemes,
		purger:  purger,
		logger:  logger.With(logging.Fields{"service": ServiceName}),
	}
}

// SetSchemePruner attaches the scheme-side deletion cascade. Set when the
// scheme service runs in the same process; remote deployments reconcile
// schemes on their own.
func (s *Service) SetSchemePruner(pruner SchemePruner) {
	s.pruner = pruner
}

// CreateBuffer validates the buffer, confirms the owning device belongs to
// the caller, and persists it. A missing uid is generated.
func (s *Service) CreateBuffer(ctx context.Context, caller domain.Principal, b domain.Buffer) (domain.Buffer, error) {
	if caller.IsZero() {
		return domain.Buffer{}, domain.Unauthorizedf("cannot create buffers without authorization")
	}
	if err := validate(b); err != nil {
		return domain.Buffer{}, err
	}
	if err := s.authorizeDevice(ctx, caller, b.DeviceUID); err != nil {
		return domain.Buffer{}, err
	}
	if b.UID == "" {
		b.UID = ids.NewEntityUID()
	}
	if !ids.ValidUID(b.UID) {
		return domain.Buffer{}, domain.Validationf("buffer uid %q is not a valid uid", b.UID)
	}
	if err := s.store.Insert(b); err != nil {
		return domain.Buffer{}, err
	}
	s.logger.Info("Buffer created", logging.Fields{"buffer_uid": b.UID, "device_uid": b.DeviceUID})
	return b, nil
}

// GetBuffer returns a buffer the caller is authorized for.
func (s *Service) GetBuffer(ctx context.Context, caller domain.Principal, uid string) (domain.Buffer, error) {
	b, ok := s.store.Get(uid)
	if !ok {
		return domain.Buffer{}, domain.NotFoundf("buffer %s not found", uid)
	}
	if err := s.authorizeDevice(ctx, caller, b.DeviceUID); err != nil {
		return domain.Buffer{}, err
	}
	return b, nil
}

// GetBuffersByDevice lists the buffers of one device the caller is
// authorized for.
func (s *Service) GetBuffersByDevice(ctx context.Context, caller domain.Principal, deviceUID string) ([]domain.Buffer, error) {
	if err := s.authorizeDevice(ctx, caller, deviceUID); err != nil {
		return nil, err
	}
	return s.store.ByDevice(deviceUID), nil
}

// GetBuffersByClient lists every buffer across the caller's devices.
func (s *Service) GetBuffersByClient(ctx context.Context, caller domain.Principal) ([]domain.Buffer, error) {
	if !caller.IsClient() {
		return nil, domain.Unauthorizedf("only authenticated clients can list buffers by client")
	}
	devices, err := s.devices.GetByClient(ctx, caller.UID)
	if err != nil {
		return nil, failClosed(err)
	}
	var out []domain.Buffer
	for _, d := range devices {
		out = append(out, s.store.ByDevice(d.UID)...)
	}
	return out, nil
}

// GetBuffersByScheme lists the buffers participating in a scheme the caller
// owns.
func (s *Service) GetBuffersByScheme(ctx context.Context, caller domain.Principal, schemeUID string) ([]domain.Buffer, error) {
	if !caller.IsClient() {
		return nil, domain.Unauthorizedf("only authenticated clients can list buffers by scheme")
	}
	scheme, err := s.schemes.GetByUID(ctx, schemeUID)
	if err != nil {
		return nil, failClosed(err)
	}
	if scheme.ClientUID != caller.UID {
		return nil, domain.Unauthorizedf("scheme %s does not belong to the authenticated client", schemeUID)
	}
	return s.resolveSchemeBuffers(scheme), nil
}

// UpdateBuffer replaces a buffer's limits and prototype. The owning device
// cannot be changed.
func (s *Service) UpdateBuffer(ctx context.Context, caller domain.Principal, b domain.Buffer) (domain.Buffer, error) {
	existing, ok := s.store.Get(b.UID)
	if !ok {
		return domain.Buffer{}, domain.NotFoundf("buffer %s not found", b.UID)
	}
	if b.DeviceUID != "" && b.DeviceUID != existing.DeviceUID {
		return domain.Buffer{}, domain.Validationf("buffer %s cannot move to another device", b.UID)
	}
	b.DeviceUID = existing.DeviceUID
	if err := validate(b); err != nil {
		return domain.Buffer{}, err
	}
	if err := s.authorizeDevice(ctx, caller, existing.DeviceUID); err != nil {
		return domain.Buffer{}, err
	}
	if err := s.store.Update(b); err != nil {
		return domain.Buffer{}, err
	}
	return b, nil
}

// DeleteBuffer removes a buffer the caller is authorized for, cascading the
// removal of its messages.
func (s *Service) DeleteBuffer(ctx context.Context, caller domain.Principal, uid string) error {
	b, ok := s.store.Get(uid)
	if !ok {
		return domain.NotFoundf("buffer %s not found", uid)
	}
	if err := s.authorizeDevice(ctx, caller, b.DeviceUID); err != nil {
		return err
	}
	s.store.Delete(uid)
	fields := logging.Fields{"buffer_uid": uid}
	if s.purger != nil {
		fields["messages_purged"] = s.purger.PurgeBuffer(uid)
	}
	if s.pruner != nil {
		fields["schemes_pruned"] = s.pruner.RemoveBufferFromSchemes(uid)
	}
	s.logger.Info("Buffer deleted", fields)
	return nil
}

// Health aggregates the reachability of the collaborator domains.
func (s *Service) Health(ctx context.Context) domain.HealthStatus {
	status := domain.HealthStatus{
		Service:      ServiceName,
		Status:       domain.HealthOK,
		Timestamp:    time.Now().UnixMilli(),
		Dependencies: map[string]string{},
	}
	probe(ctx, status.Dependencies, string(rpc.DomainDevice), s.devices.Health)
	probe(ctx, status.Dependencies, string(rpc.DomainScheme), s.schemes.Health)
	for _, state := range status.Dependencies {
		if state != domain.DependencyAvailable {
			status.Status = domain.HealthDegraded
		}
	}
	return status
}

func probe(ctx context.Context, deps map[string]string, name string, check func(context.Context) (domain.HealthStatus, error)) {
	if _, err := check(ctx); err != nil {
		deps[name] = domain.DependencyUnavailable
		return
	}
	deps[name] = domain.DependencyAvailable
}

// authorizeDevice confirms the caller may act on buffers of the device. The
// device record is resolved over the bus; lookup transport failures reject
// rather than permit.
func (s *Service) authorizeDevice(ctx context.Context, caller domain.Principal, deviceUID string) error {
	if caller.IsZero() {
		return domain.Unauthorizedf("cannot access buffers without authorization")
	}
	if caller.IsDevice() {
		if caller.UID != deviceUID {
			return domain.Unauthorizedf("device can only access its own buffers")
		}
		return nil
	}
	d, err := s.devices.GetByUID(ctx, deviceUID)
	if err != nil {
		return failClosed(err)
	}
	if d.ClientUID != caller.UID {
		return domain.Unauthorizedf("device %s does not belong to the authenticated client", deviceUID)
	}
	return nil
}

func (s *Service) resolveSchemeBuffers(scheme domain.ConnectionScheme) []domain.Buffer {
	var out []domain.Buffer
	for _, uid := range scheme.UsedBuffers {
		if b, ok := s.store.Get(uid); ok {
			out = append(out, b)
		}
	}
	return out
}

func validate(b domain.Buffer) error {
	if b.DeviceUID == "" {
		return domain.Validationf("buffer requires an owning device")
	}
	if b.MaxMessagesNumber <= 0 {
		return domain.Validationf("buffer max messages number must be positive")
	}
	if b.MaxMessageSize <= 0 {
		return domain.Validationf("buffer max message size must be positive")
	}
	return nil
}

// failClosed turns infrastructure failures of an ownership lookup into
// authorization errors so a broken collaborator never grants access.
func failClosed(err error) error {
	switch domain.KindOf(err) {
	case domain.ErrTransport, domain.ErrTypeMismatch, domain.ErrInternal:
		return domain.Unauthorizedf("cannot confirm ownership: %v", err)
	default:
		return err
	}
}

// RegisterHandlers binds the buffer lookups peer domains depend on. Like the
// device handlers they run without a principal.
func (s *Service) RegisterHandlers(d *rpc.Dispatcher) {
	d.Handle(domain.KindBufferGetByUID, func(ctx context.Context, cmd rpc.Command) (any, error) {
		var req domain.GetBufferByUIDRequest
		if err := cmd.DecodePayload(&req); err != nil {
			return nil, domain.Validationf("%v", err)
		}
		b, ok := s.store.Get(req.BufferUID)
		if !ok {
			return nil, domain.NotFoundf("buffer %s not found", req.BufferUID)
		}
		return domain.GetBufferByUIDResponse{Buffer: b}, nil
	})

	d.Handle(domain.KindBufferGetByDevice, func(ctx context.Context, cmd rpc.Command) (any, error) {
		var req domain.GetBuffersByDeviceRequest
		if err := cmd.DecodePayload(&req); err != nil {
			return nil, domain.Validationf("%v", err)
		}
		return domain.GetBuffersByDeviceResponse{Buffers: s.store.ByDevice(req.DeviceUID)}, nil
	})

	d.Handle(domain.KindBufferGetByScheme, func(ctx context.Context, cmd rpc.Command) (any, error) {
		var req domain.GetBuffersBySchemeRequest
		if err := cmd.DecodePayload(&req); err != nil {
			return nil, domain.Validationf("%v", err)
		}
		scheme, err := s.schemes.GetByUID(ctx, req.SchemeUID)
		if err != nil {
			return nil, err
		}
		return domain.GetBuffersBySchemeResponse{Buffers: s.resolveSchemeBuffers(scheme)}, nil
	})
}
