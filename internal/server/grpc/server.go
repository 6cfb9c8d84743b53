// Package grpcserver exposes the goph-talk gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/goph-talk/internal/api"
	"github.com/and161185/goph-talk/internal/auth"
	"github.com/and161185/goph-talk/internal/convert"
	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/service"
	"github.com/and161185/goph-talk/internal/session"
)

// Services groups the application services the handlers call.
type Services struct {
	Auth         service.AuthService
	Users        service.UserService
	Verification service.VerificationService
	Chat         service.ChatService
}

// Server wires services into gRPC handlers.
type Server struct {
	auth      service.AuthService
	users     service.UserService
	verify    service.VerificationService
	chat      service.ChatService
	tokens    session.Verifier
	log       *zap.Logger
	sendQueue int

	closing   chan struct{}
	closeOnce sync.Once
}

var _ ChatServer = (*Server)(nil)

// New constructs a gRPC server with injected services. sendQueue bounds each live
// stream's outbound queue.
func New(svc Services, tokens session.Verifier, log *zap.Logger, sendQueue int) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		auth:      svc.Auth,
		users:     svc.Users,
		verify:    svc.Verification,
		chat:      svc.Chat,
		tokens:    tokens,
		log:       log,
		sendQueue: sendQueue,
		closing:   make(chan struct{}),
	}
}

// Shutdown ends every open Connect stream with Unavailable. Call it before
// grpc.Server.GracefulStop, which otherwise waits for clients to hang up.
func (s *Server) Shutdown() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// --- Accounts ---

// Register creates a new user account and signs it in.
func (s *Server) Register(ctx context.Context, req *api.RegisterRequest) (*api.AuthResponse, error) {
	u, tok, err := s.auth.Register(ctx, convert.FromAPIRegister(*req))
	if err != nil {
		return nil, toStatus(err)
	}
	resp := convert.ToAPIAuth(u, tok)
	return &resp, nil
}

// Login authenticates a user and returns a token.
func (s *Server) Login(ctx context.Context, req *api.LoginRequest) (*api.AuthResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "empty username/password")
	}
	tok, u, err := s.auth.LoginWithIP(ctx, req.Username, req.Password, remoteIP(ctx))
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, "bad credentials")
		}
		return nil, toStatus(err)
	}
	resp := convert.ToAPIAuth(u, tok)
	return &resp, nil
}

// SendVerification issues a phone confirmation code.
func (s *Server) SendVerification(ctx context.Context, req *api.SendVerificationRequest) (*api.OKResponse, error) {
	if err := s.verify.SendCode(ctx, req.Phone); err != nil {
		return nil, toStatus(err)
	}
	return &api.OKResponse{OK: true}, nil
}

// VerifyPhone confirms the caller's phone.
func (s *Server) VerifyPhone(ctx context.Context, req *api.VerifyPhoneRequest) (*api.OKResponse, error) {
	id, ok := IdentityFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	if err := s.verify.VerifyPhone(ctx, id.UserID, req.Phone, req.Code); err != nil {
		return nil, toStatus(err)
	}
	return &api.OKResponse{OK: true}, nil
}

// --- Directory ---

// Me returns the caller's profile.
func (s *Server) Me(ctx context.Context, _ *api.Empty) (*api.MeResponse, error) {
	id, ok := IdentityFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	u, err := s.users.Me(ctx, id.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.MeResponse{User: convert.ToAPIUser(u)}, nil
}

// Contacts lists every other user.
func (s *Server) Contacts(ctx context.Context, _ *api.Empty) (*api.ContactsResponse, error) {
	id, ok := IdentityFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	us, err := s.users.Contacts(ctx, id.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ContactsResponse{Contacts: convert.ToAPIContacts(us)}, nil
}

// --- Messages ---

// History returns the conversation between the caller and req.With, oldest first.
func (s *Server) History(ctx context.Context, req *api.HistoryRequest) (*api.HistoryResponse, error) {
	id, ok := IdentityFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	msgs, err := s.chat.History(ctx, id.UserID, req.With)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.HistoryResponse{Messages: convert.ToAPIMessages(msgs)}, nil
}

// toStatus maps domain errors to gRPC status codes once, at the edge.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, errs.ErrInvalidArgument),
		errors.Is(err, errs.ErrCodeInvalid),
		errors.Is(err, errs.ErrCodeExpired):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrStorage):
		return status.Error(codes.Unavailable, "storage unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		return status.Error(codes.Internal, "internal")
	}
}

func remoteIP(ctx context.Context) string {
	return peerAddr(ctx)
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		if t, ok := auth.BearerToken(v); ok {
			return t, nil
		}
	}
	return "", errors.New("no bearer token")
}
