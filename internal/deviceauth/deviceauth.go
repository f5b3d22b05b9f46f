// Package deviceauth owns device tokens. It mirrors the client token
// contract of the auth domain with device uids as the embedded identity.
package deviceauth

import (
	"context"
	"strings"
	"time"

	"github.com/connmesh/connmesh/internal/auth"
	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/ids"
	"github.com/connmesh/connmesh/internal/platform/logging"
	"github.com/connmesh/connmesh/internal/rpc"
)

const ServiceName = "device-auth-service"

// Service validates and extracts device tokens.
type Service struct {
	store  auth.TokenStore
	logger logging.ServiceLogger
}

func NewService(store auth.TokenStore, logger logging.ServiceLogger) *Service {
	return &Service{
		store:  store,
		logger: logger.With(logging.Fields{"service": ServiceName}),
	}
}

// IssueToken mints a token for the device uid and records it as valid.
func (s *Service) IssueToken(ctx context.Context, deviceUID string) (string, error) {
	if !ids.ValidUID(deviceUID) {
		return "", domain.Validationf("device uid %q is not a valid uid", deviceUID)
	}
	token := deviceUID + "." + ids.NewCorrelationID()
	s.store.Put(token, deviceUID)
	return token, nil
}

// RevokeToken invalidates a previously issued token.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	if !s.store.Revoke(token) {
		return domain.NotFoundf("token is not known")
	}
	return nil
}

// ValidateToken returns the device uid the token was issued for.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, error) {
	uid, ok := s.store.Lookup(token)
	if !ok {
		return "", domain.Unauthorizedf("device token is invalid or revoked")
	}
	return uid, nil
}

// ExtractUID reads the uid embedded in the token without checking validity.
func (s *Service) ExtractUID(ctx context.Context, token string) (string, error) {
	uid, _, ok := strings.Cut(token, ".")
	if !ok || !ids.ValidUID(uid) {
		return "", domain.Validationf("token carries no uid")
	}
	return uid, nil
}

// Health reports the service status.
func (s *Service) Health(ctx context.Context) domain.HealthStatus {
	return domain.HealthStatus{
		Status:    domain.HealthOK,
		Service:   ServiceName,
		Timestamp: time.Now().UnixMilli(),
	}
}

// RegisterHandlers binds the token operations to the device-auth command
// topic.
func (s *Service) RegisterHandlers(d *rpc.Dispatcher) {
	d.Handle(domain.KindDeviceAuthValidateToken, func(ctx context.Context, cmd rpc.Command) (any, error) {
		var req domain.ValidateTokenRequest
		if err := cmd.DecodePayload(&req); err != nil {
			return nil, domain.Validationf("%v", err)
		}
		uid, err := s.ValidateToken(ctx, req.Token)
		if err != nil {
			return nil, err
		}
		return domain.ValidateTokenResponse{UID: uid}, nil
	})

	d.Handle(domain.KindDeviceAuthExtractUID, func(ctx context.Context, cmd rpc.Command) (any, error) {
		var req domain.ExtractUIDRequest
		if err := cmd.DecodePayload(&req); err != nil {
			return nil, domain.Validationf("%v", err)
		}
		uid, err := s.ExtractUID(ctx, req.Token)
		if err != nil {
			return nil, err
		}
		return domain.ExtractUIDResponse{UID: uid}, nil
	})
}
