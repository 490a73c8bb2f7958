package grpc

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	grpcCodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/tspence/api-key-generator/internal/application/service"
	"github.com/tspence/api-key-generator/internal/infrastructure/ratelimit"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/errors"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// KeyAuthenticator is the part of the application service the interceptors need.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, raw, remoteAddress string) (*apikey.PersistedKey, error)
}

// GRPCRecorder receives one observation per call.
type GRPCRecorder interface {
	RecordGRPCRequest(method, code string)
}

// InterceptorChain holds the collaborators shared by every interceptor.
type InterceptorChain struct {
	log      logger.Logger
	auth     KeyAuthenticator
	limiter  ratelimit.Limiter
	recorder GRPCRecorder
	public   map[string]bool
}

// NewInterceptorChain creates an interceptor chain. Methods listed in public
// (full method names) skip key authentication. limiter and recorder may be nil.
func NewInterceptorChain(log logger.Logger, auth KeyAuthenticator, limiter ratelimit.Limiter, recorder GRPCRecorder, public ...string) *InterceptorChain {
	ic := &InterceptorChain{
		log:      log,
		auth:     auth,
		limiter:  limiter,
		recorder: recorder,
		public:   make(map[string]bool, len(public)),
	}
	for _, m := range public {
		ic.public[m] = true
	}
	return ic
}

// UnaryRecoveryInterceptor turns handler panics into Internal.
func (ic *InterceptorChain) UnaryRecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				ic.log.Error(ctx, "gRPC handler panic recovered", fmt.Errorf("%v", r),
					logger.String("method", info.FullMethod))
				err = status.Error(grpcCodes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// UnaryLoggingInterceptor logs and counts every call.
func (ic *InterceptorChain) UnaryLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		ic.observe(ctx, info.FullMethod, start, err)
		return resp, err
	}
}

// UnaryRateLimitInterceptor meters calls per peer address. Limiter failures
// let the call through.
func (ic *InterceptorChain) UnaryRateLimitInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := ic.allow(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// UnaryAPIKeyInterceptor authenticates the x-api-key metadata value and
// stores the persisted key in the handler's context.
func (ic *InterceptorChain) UnaryAPIKeyInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if ic.public[info.FullMethod] {
			return handler(ctx, req)
		}
		authed, err := ic.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(authed, req)
	}
}

// UnaryErrorInterceptor maps ServiceErrors to gRPC status codes.
func (ic *InterceptorChain) UnaryErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return resp, toStatus(err)
		}
		return resp, nil
	}
}

// ChainUnaryInterceptors returns the unary chain in order.
func (ic *InterceptorChain) ChainUnaryInterceptors() grpc.ServerOption {
	return grpc.ChainUnaryInterceptor(
		ic.UnaryRecoveryInterceptor(),
		ic.UnaryLoggingInterceptor(),
		ic.UnaryRateLimitInterceptor(),
		ic.UnaryAPIKeyInterceptor(),
		ic.UnaryErrorInterceptor(),
	)
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

// StreamRecoveryInterceptor turns handler panics into Internal.
func (ic *InterceptorChain) StreamRecoveryInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				ic.log.Error(ss.Context(), "gRPC stream panic recovered", fmt.Errorf("%v", r),
					logger.String("method", info.FullMethod))
				err = status.Error(grpcCodes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

// StreamAPIKeyInterceptor authenticates once when the stream opens.
func (ic *InterceptorChain) StreamAPIKeyInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		ctx := ss.Context()
		if err := ic.allow(ctx, info.FullMethod); err != nil {
			ic.observe(ctx, info.FullMethod, start, err)
			return err
		}
		if !ic.public[info.FullMethod] {
			authed, err := ic.authenticate(ctx)
			if err != nil {
				ic.observe(ctx, info.FullMethod, start, err)
				return err
			}
			ss = &authedStream{ServerStream: ss, ctx: authed}
		}
		err := handler(srv, ss)
		if err != nil {
			err = toStatus(err)
		}
		ic.observe(ctx, info.FullMethod, start, err)
		return err
	}
}

// ChainStreamInterceptors returns the stream chain in order.
func (ic *InterceptorChain) ChainStreamInterceptors() grpc.ServerOption {
	return grpc.ChainStreamInterceptor(
		ic.StreamRecoveryInterceptor(),
		ic.StreamAPIKeyInterceptor(),
	)
}

func (ic *InterceptorChain) authenticate(ctx context.Context) (context.Context, error) {
	raw := apiKeyFromMetadata(ctx)
	if raw == "" {
		return nil, status.Error(grpcCodes.Unauthenticated, apikey.MsgEmptyKey)
	}
	key, err := ic.auth.Authenticate(ctx, raw, peerAddress(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return service.ContextWithKey(ctx, key), nil
}

func (ic *InterceptorChain) allow(ctx context.Context, method string) error {
	if ic.limiter == nil {
		return nil
	}
	addr := peerAddress(ctx)
	res, err := ic.limiter.Allow(ctx, addr)
	if err != nil {
		ic.log.Error(ctx, "rate limit check failed", err, logger.String("method", method))
		return nil
	}
	if !res.Allowed {
		ic.log.Warn(ctx, "rate limit exceeded",
			logger.String("client_ip", addr), logger.String("method", method))
		return status.Error(grpcCodes.ResourceExhausted, "rate limit exceeded")
	}
	return nil
}

func (ic *InterceptorChain) observe(ctx context.Context, method string, start time.Time, err error) {
	code := status.Code(err)
	if ic.recorder != nil {
		ic.recorder.RecordGRPCRequest(method, code.String())
	}
	ic.log.Info(ctx, "gRPC request completed",
		logger.String("method", method),
		logger.String("client_ip", peerAddress(ctx)),
		logger.Int64("duration_ms", time.Since(start).Milliseconds()),
		logger.String("status", code.String()),
	)
}

// apiKeyFromMetadata reads x-api-key, or an authorization value using the
// ApiKey scheme.
func apiKeyFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(constants.MetadataAPIKey); len(v) > 0 && strings.TrimSpace(v[0]) != "" {
		return strings.TrimSpace(v[0])
	}
	for _, v := range md.Get("authorization") {
		scheme, key, ok := strings.Cut(v, " ")
		if ok && strings.EqualFold(scheme, constants.AuthorizationScheme) {
			return strings.TrimSpace(key)
		}
	}
	return ""
}

// peerAddress returns the caller's host without its port.
func peerAddress(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// toStatus maps an error to a gRPC status. Errors already carrying a status
// pass through; ServiceErrors map by HTTP status; anything else is Internal.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	svcErr, ok := errors.AsServiceError(err)
	if !ok {
		return status.Error(grpcCodes.Internal, "internal server error")
	}

	msg := errors.ToErrorResponse(svcErr).Message
	if msg == "" {
		msg = svcErr.Description()
	}
	switch svcErr.HTTPStatus() {
	case 400:
		return status.Error(grpcCodes.InvalidArgument, msg)
	case 401:
		return status.Error(grpcCodes.Unauthenticated, msg)
	case 403:
		return status.Error(grpcCodes.PermissionDenied, msg)
	case 404:
		return status.Error(grpcCodes.NotFound, msg)
	case 429:
		return status.Error(grpcCodes.ResourceExhausted, msg)
	case 503:
		return status.Error(grpcCodes.Unavailable, msg)
	default:
		return status.Error(grpcCodes.Internal, "internal server error")
	}
}
