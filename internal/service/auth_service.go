package service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/auth"
)

const (
	// AuthServiceName is the fully-qualified name of the auth service.
	AuthServiceName = "splitledger.v1.AuthService"

	AuthServiceLoginProcedure = "/" + AuthServiceName + "/Login"
)

// AuthService implements the AuthService RPC interface.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	logger        *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, logger *slog.Logger) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		logger:        logger,
	}
}

// NewAuthServiceHandler builds the HTTP handler for AuthService.
// It must be mounted without the auth interceptor.
func NewAuthServiceHandler(svc *AuthService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSONCodec()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(AuthServiceLoginProcedure, connect.NewUnaryHandler(AuthServiceLoginProcedure, svc.Login, opts...))
	return "/" + AuthServiceName + "/", mux
}

// Login exchanges the shared password for a JWT naming the operator.
func (s *AuthService) Login(ctx context.Context, req *connect.Request[LoginRequest]) (*connect.Response[LoginResponse], error) {
	s.logger.Info("Login request", "operator", req.Msg.Operator)

	if req.Msg.Operator == "" || req.Msg.Password == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, auth.ErrInvalidCredentials)
	}

	op, err := s.authenticator.Authenticate(ctx, req.Msg.Operator, req.Msg.Password)
	if err != nil {
		s.logger.Warn("Login failed", "operator", req.Msg.Operator, "error", err)
		return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidCredentials)
	}

	token, err := s.jwtManager.Generate(op)
	if err != nil {
		s.logger.Error("Failed to generate token", "operator", op.Name, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	s.logger.Info("Operator logged in", "operator", op.Name)
	return connect.NewResponse(&LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(s.jwtManager.TokenDuration()).Unix(),
	}), nil
}
