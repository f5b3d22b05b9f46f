package device

import (
	"context"
	"time"

	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/ids"
	"github.com/connmesh/connmesh/internal/platform/logging"
	"github.com/connmesh/connmesh/internal/rpc"
)

// ServiceName identifies the device service on the bus and in health
// responses.
const ServiceName = "device-service"

// Service implements the device domain: CRUD for client-side callers and the
// trusted lookups other domains resolve ownership through.
type Service struct {
	store  Store
	logger logging.ServiceLogger
}

func NewService(store Store, logger logging.ServiceLogger) *Service {
	return &Service{
		store:  store,
		logger: logger.With(logging.Fields{"service": ServiceName}),
	}
}

// CreateDevice registers a device for the authenticated client. A missing uid
// is generated.
func (s *Service) CreateDevice(ctx context.Context, caller domain.Principal, d domain.Device) (domain.Device, error) {
	if !caller.IsClient() {
		return domain.Device{}, domain.Unauthorizedf("only authenticated clients can create devices")
	}
	if d.ClientUID == "" {
		d.ClientUID = caller.UID
	}
	if d.ClientUID != caller.UID {
		return domain.Device{}, domain.Unauthorizedf("device %s cannot be created for another client", d.UID)
	}
	if d.UID == "" {
		d.UID = ids.NewEntityUID()
	}
	if !ids.ValidUID(d.UID) {
		return domain.Device{}, domain.Validationf("device uid %q is not a valid uid", d.UID)
	}
	if err := s.store.Insert(d); err != nil {
		return domain.Device{}, err
	}
	s.logger.Info("Device created", logging.Fields{"device_uid": d.UID, "client_uid": d.ClientUID})
	return d, nil
}

// GetDevice returns the device when the caller owns it, or is it.
func (s *Service) GetDevice(ctx context.Context, caller domain.Principal, uid string) (domain.Device, error) {
	d, ok := s.store.Get(uid)
	if !ok {
		return domain.Device{}, domain.NotFoundf("device %s not found", uid)
	}
	if err := authorize(caller, d); err != nil {
		return domain.Device{}, err
	}
	return d, nil
}

// GetDevicesByClient lists the caller's own devices.
func (s *Service) GetDevicesByClient(ctx context.Context, caller domain.Principal) ([]domain.Device, error) {
	if !caller.IsClient() {
		return nil, domain.Unauthorizedf("only authenticated clients can list devices")
	}
	return s.store.ByClient(caller.UID), nil
}

// DeleteDevice removes a device the caller owns.
func (s *Service) DeleteDevice(ctx context.Context, caller domain.Principal, uid string) error {
	d, ok := s.store.Get(uid)
	if !ok {
		return domain.NotFoundf("device %s not found", uid)
	}
	if !caller.IsClient() || d.ClientUID != caller.UID {
		return domain.Unauthorizedf("device %s does not belong to the authenticated client", uid)
	}
	s.store.Delete(uid)
	s.logger.Info("Device deleted", logging.Fields{"device_uid": uid})
	return nil
}

// Health reports the service status. The device domain has no bus
// collaborators, so its health is local.
func (s *Service) Health(ctx context.Context) domain.HealthStatus {
	return domain.HealthStatus{
		Status:    domain.HealthOK,
		Service:   ServiceName,
		Timestamp: time.Now().UnixMilli(),
	}
}

func authorize(caller domain.Principal, d domain.Device) error {
	switch {
	case caller.IsClient() && d.ClientUID == caller.UID:
		return nil
	case caller.IsDevice() && d.UID == caller.UID:
		return nil
	case caller.IsZero():
		return domain.Unauthorizedf("cannot access devices without authorization")
	default:
		return domain.Unauthorizedf("device %s does not belong to the authenticated %s", d.UID, caller.Kind)
	}
}

// RegisterHandlers binds the device lookups other domains depend on. These
// run without a principal: commands arrive from peer services, and the
// caller-facing authorization already happened in the service that holds the
// caller's token.
func (s *Service) RegisterHandlers(d *rpc.Dispatcher) {
	d.Handle(domain.KindDeviceGetByUID, func(ctx context.Context, cmd rpc.Command) (any, error) {
		var req domain.GetDeviceByUIDRequest
		if err := cmd.DecodePayload(&req); err != nil {
			return nil, domain.Validationf("%v", err)
		}
		dev, ok := s.store.Get(req.DeviceUID)
		if !ok {
			return nil, domain.NotFoundf("device %s not found", req.DeviceUID)
		}
		return domain.GetDeviceByUIDResponse{Device: dev}, nil
	})

	d.Handle(domain.KindDeviceGetByClient, func(ctx context.Context, cmd rpc.Command) (any, error) {
		var req domain.GetDevicesByClientRequest
		if err := cmd.DecodePayload(&req); err != nil {
			return nil, domain.Validationf("%v", err)
		}
		return domain.GetDevicesByClientResponse{Devices: s.store.ByClient(req.ClientUID)}, nil
	})
}
