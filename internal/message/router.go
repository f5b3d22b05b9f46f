package message

import (
	"context"
	"time"

	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/ids"
	"github.com/connmesh/connmesh/internal/platform/logging"
	"github.com/connmesh/connmesh/internal/rpc"
)

const ServiceName = "message-service"

// The directory interfaces below are the slices of the typed bus clients the
// router consumes, so tests can substitute local fakes.

type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (string, error)
	Health(ctx context.Context) (domain.HealthStatus, error)
}

type DeviceDirectory interface {
	GetByUID(ctx context.Context, deviceUID string) (domain.Device, error)
	Health(ctx context.Context) (domain.HealthStatus, error)
}

type BufferDirectory interface {
	GetByUID(ctx context.Context, bufferUID string) (domain.Buffer, error)
	GetByDevice(ctx context.Context, deviceUID string) ([]domain.Buffer, error)
	Health(ctx context.Context) (domain.HealthStatus, error)
}

type SchemeDirectory interface {
	GetByUID(ctx context.Context, schemeUID string) (domain.ConnectionScheme, error)
	GetByBuffer(ctx context.Context, bufferUID string) ([]domain.ConnectionScheme, error)
	Health(ctx context.Context) (domain.HealthStatus, error)
}

// Router is the message domain service. Every ownership decision is resolved
// over the bus through the typed clients; when a lookup cannot complete, the
// router fails closed and rejects with an authorization error.
type Router struct {
	store      Store
	auth       TokenVerifier
	deviceAuth TokenVerifier
	devices    DeviceDirectory
	buffers    BufferDirectory
	schemes    SchemeDirectory
	logger     logging.ServiceLogger
	now        func() time.Time
}

func NewRouter(
	store Store,
	auth TokenVerifier,
	deviceAuth TokenVerifier,
	devices DeviceDirectory,
	buffers BufferDirectory,
	schemes SchemeDirectory,
	logger logging.ServiceLogger,
) *Router {
	return &Router{
		store:      store,
		auth:       auth,
		deviceAuth: deviceAuth,
		devices:    devices,
		buffers:    buffers,
		schemes:    schemes,
		logger:     logger.With(logging.Fields{"service": ServiceName}),
		now:        time.Now,
	}
}

// Authenticate resolves a principal from the supplied tokens. A client token
// wins when both are present. Token validation happens in the auth domains
// over the bus, and a validation that cannot complete yields no principal.
func (r *Router) Authenticate(ctx context.Context, clientToken, deviceToken string) (domain.Principal, error) {
	if clientToken != "" {
		uid, err := r.auth.ValidateToken(ctx, clientToken)
		if err != nil {
			return domain.Principal{}, failClosed(err)
		}
		return domain.ClientPrincipal(uid), nil
	}
	if deviceToken != "" {
		uid, err := r.deviceAuth.ValidateToken(ctx, deviceToken)
		if err != nil {
			return domain.Principal{}, failClosed(err)
		}
		return domain.DevicePrincipal(uid), nil
	}
	return domain.Principal{}, domain.Unauthorizedf("no token supplied")
}

// AddMessage ingests one message: authorize the caller against the buffer's
// owning device, persist the message, then propagate outgoing content one
// hop along the transition graph of every scheme containing the buffer. The
// stored source message is returned.
//
// Propagation is not transactional with the source insert: a crash in the
// middle leaves a partially propagated state, and replaying the same message
// uid is safe because writes are idempotent by uid.
func (r *Router) AddMessage(ctx context.Context, caller domain.Principal, msg domain.Message) (domain.Message, error) {
	if caller.IsZero() {
		return domain.Message{}, domain.Unauthorizedf("cannot add messages without authorization")
	}
	if msg.BufferUID == "" {
		return domain.Message{}, domain.Validationf("message requires a buffer uid")
	}
	if !msg.ContentType.Valid() {
		return domain.Message{}, domain.Validationf("message content type %q is unknown", msg.ContentType)
	}

	buf, err := r.buffers.GetByUID(ctx, msg.BufferUID)
	if err != nil {
		return domain.Message{}, failClosed(err)
	}
	if err := r.authorizeDevice(ctx, caller, buf.DeviceUID); err != nil {
		return domain.Message{}, err
	}

	if buf.MaxMessageSize > 0 && len(msg.Content) > buf.MaxMessageSize {
		return domain.Message{}, domain.Validationf(
			"message of %d bytes exceeds buffer %s limit of %d", len(msg.Content), buf.UID, buf.MaxMessageSize)
	}
	if buf.MaxMessagesNumber > 0 && r.store.Count(buf.UID) >= buf.MaxMessagesNumber {
		return domain.Message{}, domain.Validationf("buffer %s is full", buf.UID)
	}

	if msg.UID == "" {
		msg.UID = ids.NewMessageUID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}
	if err := r.store.Add(msg); err != nil {
		return domain.Message{}, err
	}

	if msg.ContentType == domain.Outgoing {
		if err := r.propagate(ctx, msg); err != nil {
			return domain.Message{}, err
		}
	}
	return msg, nil
}

// propagate duplicates the message into every buffer reachable by one
// transition hop, merging the transition maps of all schemes that contain
// the source buffer. Copies get fresh uids and INCOMING content type, so
// they never re-trigger propagation.
func (r *Router) propagate(ctx context.Context, src domain.Message) error {
	schemes, err := r.schemes.GetByBuffer(ctx, src.BufferUID)
	if err != nil {
		return failClosed(err)
	}

	var dests []string
	seen := map[string]struct{}{}
	for _, cs := range schemes {
		for _, dst := range cs.BufferTransitions[src.BufferUID] {
			if _, dup := seen[dst]; dup || dst == src.BufferUID {
				continue
			}
			seen[dst] = struct{}{}
			dests = append(dests, dst)
		}
	}

	for _, dst := range dests {
		copied := domain.Message{
			UID:         ids.NewMessageUID(),
			BufferUID:   dst,
			ContentType: domain.Incoming,
			Content:     src.Content,
			CreatedAt:   r.now(),
		}
		if err := r.store.Add(copied); err != nil {
			return err
		}
		r.logger.Debug("Message propagated", logging.Fields{
			"source_uid":    src.UID,
			"source_buffer": src.BufferUID,
			"copy_uid":      copied.UID,
			"dest_buffer":   dst,
		})
	}
	return nil
}

// GetMessagesByBuffer pages the buffer's messages ordered by creation time.
// With deleteOnGet the returned page is consumed.
func (r *Router) GetMessagesByBuffer(ctx context.Context, caller domain.Principal, bufferUID string, deleteOnGet bool, offset, limit int) ([]domain.Message, error) {
	buf, err := r.buffers.GetByUID(ctx, bufferUID)
	if err != nil {
		return nil, failClosed(err)
	}
	if err := r.authorizeDevice(ctx, caller, buf.DeviceUID); err != nil {
		return nil, err
	}
	return r.store.Page([]string{bufferUID}, offset, limit, deleteOnGet), nil
}

// GetMessagesByDevice pages the messages across all buffers of one device.
func (r *Router) GetMessagesByDevice(ctx context.Context, caller domain.Principal, deviceUID string, deleteOnGet bool, offset, limit int) ([]domain.Message, error) {
	if err := r.authorizeDevice(ctx, caller, deviceUID); err != nil {
		return nil, err
	}
	bufs, err := r.buffers.GetByDevice(ctx, deviceUID)
	if err != nil {
		return nil, failClosed(err)
	}
	return r.store.Page(bufferUIDs(bufs), offset, limit, deleteOnGet), nil
}

// GetMessagesByScheme pages the messages across every buffer participating
// in a scheme the calling client owns.
func (r *Router) GetMessagesByScheme(ctx context.Context, caller domain.Principal, schemeUID string, deleteOnGet bool, offset, limit int) ([]domain.Message, error) {
	if caller.IsZero() {
		return nil, domain.Unauthorizedf("cannot read messages without authorization")
	}
	if !caller.IsClient() {
		return nil, domain.Unauthorizedf("only authenticated clients can read messages by scheme")
	}
	cs, err := r.schemes.GetByUID(ctx, schemeUID)
	if err != nil {
		return nil, failClosed(err)
	}
	if cs.ClientUID != caller.UID {
		return nil, domain.Unauthorizedf("scheme %s does not belong to the authenticated client", schemeUID)
	}
	return r.store.Page(cs.UsedBuffers, offset, limit, deleteOnGet), nil
}

// PurgeBuffer removes every message in the buffer. The buffer service calls
// it when a buffer is deleted.
func (r *Router) PurgeBuffer(bufferUID string) int {
	return r.store.PurgeBuffer(bufferUID)
}

// Health aggregates the reachability of every collaborator domain.
func (r *Router) Health(ctx context.Context) domain.HealthStatus {
	status := domain.HealthStatus{
		Service:      ServiceName,
		Status:       domain.HealthOK,
		Timestamp:    time.Now().UnixMilli(),
		Dependencies: map[string]string{},
	}
	checks := []struct {
		name  string
		check func(context.Context) (domain.HealthStatus, error)
	}{
		{string(rpc.DomainAuth), r.auth.Health},
		{string(rpc.DomainDeviceAuth), r.deviceAuth.Health},
		{string(rpc.DomainDevice), r.devices.Health},
		{string(rpc.DomainBuffer), r.buffers.Health},
		{string(rpc.DomainScheme), r.schemes.Health},
	}
	for _, c := range checks {
		if _, err := c.check(ctx); err != nil {
			status.Dependencies[c.name] = domain.DependencyUnavailable
			status.Status = domain.HealthDegraded
		} else {
			status.Dependencies[c.name] = domain.DependencyAvailable
		}
	}
	return status
}

// authorizeDevice enforces the ownership rule on a buffer's owning device: a
// client caller must own the device, a device caller must be the device
// itself.
func (r *Router) authorizeDevice(ctx context.Context, caller domain.Principal, deviceUID string) error {
	if caller.IsZero() {
		return domain.Unauthorizedf("cannot access messages without authorization")
	}
	if caller.IsDevice() {
		if caller.UID != deviceUID {
			return domain.Unauthorizedf("device can only access its own messages")
		}
		return nil
	}
	d, err := r.devices.GetByUID(ctx, deviceUID)
	if err != nil {
		return failClosed(err)
	}
	if d.ClientUID != caller.UID {
		return domain.Unauthorizedf("device %s does not belong to the authenticated client", deviceUID)
	}
	return nil
}

// RegisterHandlers binds the message operations to the message command
// topic. Unlike the lookup handlers of the entity domains these commands are
// caller-facing, so every request carries tokens the router resolves into a
// principal before acting.
func (r *Router) RegisterHandlers(d *rpc.Dispatcher) {
	d.Handle(domain.KindMessageAdd, func(ctx context.Context, cmd rpc.Command) (any, error) {
		var req domain.AddMessageRequest
		if err := cmd.DecodePayload(&req); err != nil {
			return nil, domain.Validationf("%v", err)
		}
		caller, err := r.Authenticate(ctx, req.ClientToken, req.DeviceToken)
		if err != nil {
			return nil, err
		}
		stored, err := r.AddMessage(ctx, caller, req.Message)
		if err != nil {
			return nil, err
		}
		return domain.AddMessageResponse{Message: stored}, nil
	})

	d.Handle(domain.KindMessageGetByBuffer, r.queryHandler(func(ctx context.Context, caller domain.Principal, q domain.MessageQuery) ([]domain.Message, error) {
		return r.GetMessagesByBuffer(ctx, caller, q.BufferUID, q.DeleteOnGet, q.Offset, q.Limit)
	}))
	d.Handle(domain.KindMessageGetByDevice, r.queryHandler(func(ctx context.Context, caller domain.Principal, q domain.MessageQuery) ([]domain.Message, error) {
		return r.GetMessagesByDevice(ctx, caller, q.DeviceUID, q.DeleteOnGet, q.Offset, q.Limit)
	}))
	d.Handle(domain.KindMessageGetByScheme, r.queryHandler(func(ctx context.Context, caller domain.Principal, q domain.MessageQuery) ([]domain.Message, error) {
		return r.GetMessagesByScheme(ctx, caller, q.SchemeUID, q.DeleteOnGet, q.Offset, q.Limit)
	}))
}

func (r *Router) queryHandler(run func(context.Context, domain.Principal, domain.MessageQuery) ([]domain.Message, error)) rpc.HandlerFunc {
	return func(ctx context.Context, cmd rpc.Command) (any, error) {
		var q domain.MessageQuery
		if err := cmd.DecodePayload(&q); err != nil {
			return nil, domain.Validationf("%v", err)
		}
		caller, err := r.Authenticate(ctx, q.ClientToken, q.DeviceToken)
		if err != nil {
			return nil, err
		}
		msgs, err := run(ctx, caller, q)
		if err != nil {
			return nil, err
		}
		return domain.GetMessagesResponse{Messages: msgs}, nil
	}
}

func bufferUIDs(bufs []domain.Buffer) []string {
	out := make([]string, len(bufs))
	for i, b := range bufs {
		out[i] = b.UID
	}
	return out
}

// failClosed converts infrastructure failures of an ownership lookup into
// authorization errors. A collaborator that cannot answer must never grant
// access.
func failClosed(err error) error {
	switch domain.KindOf(err) {
	case domain.ErrTransport, domain.ErrTypeMismatch, domain.ErrInternal:
		return domain.Unauthorizedf("cannot confirm ownership: %v", err)
	default:
		return err
	}
}
