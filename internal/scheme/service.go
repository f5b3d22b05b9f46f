package scheme

import (
	"context"
	"time"

	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/ids"
	"github.com/connmesh/connmesh/internal/platform/logging"
	"github.com/connmesh/connmesh/internal/rpc"
)

const ServiceName = "connection-scheme-service"

// DeviceDirectory is the slice of the device client the scheme service
// consumes.
type DeviceDirectory interface {
	GetByUID(ctx context.Context, deviceUID string) (domain.Device, error)
	Health(ctx context.Context) (domain.HealthStatus, error)
}

// BufferDirectory is the slice of the buffer client the scheme service
// consumes.
type BufferDirectory interface {
	GetByUID(ctx context.Context, bufferUID string) (domain.Buffer, error)
	Health(ctx context.Context) (domain.HealthStatus, error)
}

// Service implements the connection-scheme domain. Referenced buffers and
// their owning devices are resolved over the bus.
type Service struct {
	store   Store
	devices DeviceDirectory
	buffers BufferDirectory
	logger  logging.ServiceLogger
}

func NewService(store Store, devices DeviceDirectory, buffers BufferDirectory, logger logging.ServiceLogger) *Service {
	return &Service{
		store:   store,
		devices: devices,
		buffers: buffers,
		logger:  logger.With(logging.Fields{"service": ServiceName}),
	}
}

// CreateScheme validates the transition graph, confirms every referenced
// buffer belongs to a device of the calling client, and persists the scheme.
func (s *Service) CreateScheme(ctx context.Context, caller domain.Principal, cs domain.ConnectionScheme) (domain.ConnectionScheme, error) {
	if !caller.IsClient() {
		return domain.ConnectionScheme{}, domain.Unauthorizedf("only authenticated clients can create schemes")
	}
	cs.ClientUID = caller.UID
	if err := validateGraph(cs); err != nil {
		return domain.ConnectionScheme{}, err
	}
	if err := s.authorizeBuffers(ctx, caller, cs.UsedBuffers); err != nil {
		return domain.ConnectionScheme{}, err
	}
	if cs.UID == "" {
		cs.UID = ids.NewEntityUID()
	}
	if !ids.ValidUID(cs.UID) {
		return domain.ConnectionScheme{}, domain.Validationf("scheme uid %q is not a valid uid", cs.UID)
	}
	if err := s.store.Insert(cs); err != nil {
		return domain.ConnectionScheme{}, err
	}
	s.logger.Info("Scheme created", logging.Fields{
		"scheme_uid": cs.UID,
		"client_uid": cs.ClientUID,
		"buffers":    len(cs.UsedBuffers),
	})
	return cs, nil
}

// GetSchemeByUID returns the scheme only to its owning client.
func (s *Service) GetSchemeByUID(ctx context.Context, caller domain.Principal, uid string) (domain.ConnectionScheme, error) {
	cs, ok := s.store.Get(uid)
	if !ok {
		return domain.ConnectionScheme{}, domain.NotFoundf("scheme %s not found", uid)
	}
	if !caller.IsClient() || cs.ClientUID != caller.UID {
		return domain.ConnectionScheme{}, domain.Unauthorizedf("scheme %s does not belong to the authenticated client", uid)
	}
	return cs, nil
}

// GetSchemesByClient lists the caller's schemes.
func (s *Service) GetSchemesByClient(ctx context.Context, caller domain.Principal) ([]domain.ConnectionScheme, error) {
	if !caller.IsClient() {
		return nil, domain.Unauthorizedf("only authenticated clients can list schemes")
	}
	return s.store.ByClient(caller.UID), nil
}

// UpdateScheme replaces the graph of an existing scheme after re-running the
// creation checks.
func (s *Service) UpdateScheme(ctx context.Context, caller domain.Principal, cs domain.ConnectionScheme) (domain.ConnectionScheme, error) {
	existing, ok := s.store.Get(cs.UID)
	if !ok {
		return domain.ConnectionScheme{}, domain.NotFoundf("scheme %s not found", cs.UID)
	}
	if !caller.IsClient() || existing.ClientUID != caller.UID {
		return domain.ConnectionScheme{}, domain.Unauthorizedf("scheme %s does not belong to the authenticated client", cs.UID)
	}
	cs.ClientUID = existing.ClientUID
	if err := validateGraph(cs); err != nil {
		return domain.ConnectionScheme{}, err
	}
	if err := s.authorizeBuffers(ctx, caller, cs.UsedBuffers); err != nil {
		return domain.ConnectionScheme{}, err
	}
	if err := s.store.Update(cs); err != nil {
		return domain.ConnectionScheme{}, err
	}
	return cs, nil
}

// DeleteScheme removes a scheme the caller owns.
func (s *Service) DeleteScheme(ctx context.Context, caller domain.Principal, uid string) error {
	cs, ok := s.store.Get(uid)
	if !ok {
		return domain.NotFoundf("scheme %s not found", uid)
	}
	if !caller.IsClient() || cs.ClientUID != caller.UID {
		return domain.Unauthorizedf("scheme %s does not belong to the authenticated client", uid)
	}
	s.store.Delete(uid)
	s.logger.Info("Scheme deleted", logging.Fields{"scheme_uid": uid})
	return nil
}

// RemoveBufferFromSchemes drops a deleted buffer from every scheme that
// references it, pruning its transitions. Called from the buffer deletion
// cascade.
func (s *Service) RemoveBufferFromSchemes(bufferUID string) int {
	touched := 0
	for _, cs := range s.store.ByBuffer(bufferUID) {
		kept := cs.UsedBuffers[:0:0]
		for _, uid := range cs.UsedBuffers {
			if uid != bufferUID {
				kept = append(kept, uid)
			}
		}
		cs.UsedBuffers = kept

		delete(cs.BufferTransitions, bufferUID)
		for src, dests := range cs.BufferTransitions {
			filtered := dests[:0:0]
			for _, dst := range dests {
				if dst != bufferUID {
					filtered = append(filtered, dst)
				}
			}
			if len(filtered) == 0 {
				delete(cs.BufferTransitions, src)
			} else {
				cs.BufferTransitions[src] = filtered
			}
		}

		if err := s.store.Update(cs); err == nil {
			touched++
		}
	}
	return touched
}

// Health aggregates the reachability of the collaborator domains.
func (s *Service) Health(ctx context.Context) domain.HealthStatus {
	status := domain.HealthStatus{
		Service:      ServiceName,
		Status:       domain.HealthOK,
		Timestamp:    time.Now().UnixMilli(),
		Dependencies: map[string]string{},
	}
	if _, err := s.devices.Health(ctx); err != nil {
		status.Dependencies[string(rpc.DomainDevice)] = domain.DependencyUnavailable
	} else {
		status.Dependencies[string(rpc.DomainDevice)] = domain.DependencyAvailable
	}
	if _, err := s.buffers.Health(ctx); err != nil {
		status.Dependencies[string(rpc.DomainBuffer)] = domain.DependencyUnavailable
	} else {
		status.Dependencies[string(rpc.DomainBuffer)] = domain.DependencyAvailable
	}
	for _, state := range status.Dependencies {
		if state != domain.DependencyAvailable {
			status.Status = domain.HealthDegraded
		}
	}
	return status
}

// validateGraph enforces the structural invariants: a non-empty buffer set,
// a non-empty transition map, and every transition endpoint a member of the
// used buffer set.
func validateGraph(cs domain.ConnectionScheme) error {
	if len(cs.UsedBuffers) == 0 {
		return domain.Validationf("scheme requires at least one used buffer")
	}
	if len(cs.BufferTransitions) == 0 {
		return domain.Validationf("scheme requires at least one buffer transition")
	}
	members := make(map[string]struct{}, len(cs.UsedBuffers))
	for _, uid := range cs.UsedBuffers {
		if uid == "" {
			return domain.Validationf("scheme used buffers cannot contain an empty uid")
		}
		members[uid] = struct{}{}
	}
	for src, dests := range cs.BufferTransitions {
		if _, ok := members[src]; !ok {
			return domain.Validationf("transition source %s is not a used buffer", src)
		}
		for _, dst := range dests {
			if _, ok := members[dst]; !ok {
				return domain.Validationf("transition destination %s is not a used buffer", dst)
			}
		}
	}
	return nil
}

// authorizeBuffers confirms every referenced buffer sits on a device owned
// by the calling client. Lookup transport failures reject rather than
// permit.
func (s *Service) authorizeBuffers(ctx context.Context, caller domain.Principal, bufferUIDs []string) error {
	for _, uid := range bufferUIDs {
		b, err := s.buffers.GetByUID(ctx, uid)
		if err != nil {
			return failClosed(err)
		}
		d, err := s.devices.GetByUID(ctx, b.DeviceUID)
		if err != nil {
			return failClosed(err)
		}
		if d.ClientUID != caller.UID {
			return domain.Unauthorizedf("buffer %s does not belong to the authenticated client", uid)
		}
	}
	return nil
}

func failClosed(err error) error {
	switch domain.KindOf(err) {
	case domain.ErrTransport, domain.ErrTypeMismatch, domain.ErrInternal:
		return domain.Unauthorizedf("cannot confirm ownership: %v", err)
	default:
		return err
	}
}

// RegisterHandlers binds the scheme lookups peer domains depend on. They run
// without a principal; the message router trusts them for propagation and
// re-checks caller ownership itself.
func (s *Service) RegisterHandlers(d *rpc.Dispatcher) {
	d.Handle(domain.KindSchemeGetByUID, func(ctx context.Context, cmd rpc.Command) (any, error) {
		var req domain.GetSchemeByUIDRequest
		if err := cmd.DecodePayload(&req); err != nil {
			return nil, domain.Validationf("%v", err)
		}
		cs, ok := s.store.Get(req.SchemeUID)
		if !ok {
			return nil, domain.NotFoundf("scheme %s not found", req.SchemeUID)
		}
		return domain.GetSchemeByUIDResponse{Scheme: cs}, nil
	})

	d.Handle(domain.KindSchemeGetByBuffer, func(ctx context.Context, cmd rpc.Command) (any, error) {
		var req domain.GetSchemesByBufferRequest
		if err := cmd.DecodePayload(&req); err != nil {
			return nil, domain.Validationf("%v", err)
		}
		return domain.GetSchemesByBufferResponse{Schemes: s.store.ByBuffer(req.BufferUID)}, nil
	})
}
