// Package auth owns client tokens. Tokens are opaque strings of the form
// <client-uid>.<nonce>; the uid part can be extracted without verification,
// validation requires the token to be issued and not revoked. JWT signing is
// deliberately out of scope.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/connmesh/connmesh/internal/domain"
	"github.com/connmesh/connmesh/internal/platform/ids"
	"github.com/connmesh/connmesh/internal/platform/logging"
	"github.com/connmesh/connmesh/internal/rpc"
)

const ServiceName = "auth-service"

// TokenStore holds issued tokens.
type TokenStore interface {
	Put(token, uid string)
	Lookup(token string) (string, bool)
	Revoke(token string) bool
}

// MemoryTokenStore is a mutex-guarded in-memory TokenStore.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]string)}
}

func (s *MemoryTokenStore) Put(token, uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = uid
}

func (s *MemoryTokenStore) Lookup(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uid, ok := s.tokens[token]
	return uid, ok
}

func (s *MemoryTokenStore) Revoke(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token]; !ok {
		return false
	}
	delete(s.tokens, token)
	return true
}

// Service validates and extracts client tokens.
type Service struct {
	store  TokenStore
	logger logging.ServiceLogger
}

func NewService(store TokenStore, logger logging.ServiceLogger) *Service {
	return &Service{
		store:  store,
		logger: logger.With(logging.Fields{"service": ServiceName}),
	}
}

// IssueToken mints a token for the client uid and records it as valid.
func (s *Service) IssueToken(ctx context.Context, clientUID string) (string, error) {
	if !ids.ValidUID(clientUID) {
		return "", domain.Validationf("client uid %q is not a valid uid", clientUID)
	}
	token := clientUID + "." + ids.NewCorrelationID()
	s.store.Put(token, clientUID)
	return token, nil
}

// RevokeToken invalidates a previously issued token.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	if !s.store.Revoke(token) {
		return domain.NotFoundf("token is not known")
	}
	return nil
}

// ValidateToken returns the client uid the token was issued for, rejecting
// unknown and revoked tokens.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, error) {
	uid, ok := s.store.Lookup(token)
	if !ok {
		return "", domain.Unauthorizedf("client token is invalid or revoked")
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

// RegisterHandlers binds the token operations to the auth command topic.
func (s *Service) RegisterHandlers(d *rpc.Dispatcher) {
	d.Handle(domain.KindAuthValidateToken, func(ctx context.Context, cmd rpc.Command) (any, error) {
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

	d.Handle(domain.KindAuthExtractUID, func(ctx context.Context, cmd rpc.Command) (any, error) {
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
