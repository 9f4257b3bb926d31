package transport

import (
	"context"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/metrics"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Interceptor carries the stored credential on unary gRPC calls.
type Interceptor struct {
	tokens
}

func NewInterceptor(creds Credentials, refresher Refresher, logger logging.Logger, rec metrics.Recorder) *Interceptor {
	return &Interceptor{tokens: tokens{
		creds:     creds,
		refresher: refresher,
		logger:    logging.OrNop(logger),
		metrics:   metrics.OrNop(rec),
	}}
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AuthorizationHeaderName)
	if token != "" {
		md.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

// Unary is a grpc.UnaryClientInterceptor.
func (i *Interceptor) Unary(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	err := invoker(withAccessToken(ctx, i.current(ctx)), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	if status.Code(err) != codes.Unauthenticated {
		return err
	}

	next, ok := i.renewed(ctx)
	if !ok {
		return err
	}

	i.metrics.RequestRetried("grpc")
	i.logger.Debug(ctx, "replaying call after refresh", "method", method)
	return invoker(withAccessToken(ctx, next), method, req, reply, cc, opts...)
}

// Dial opens a plaintext connection to addr with the interceptor installed.
func Dial(addr string, i *Interceptor, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(i.Unary),
	}, opts...)
	return grpc.NewClient(addr, opts...)
}

// MapError folds gRPC status codes into the shared error taxonomy.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return common.ErrUnauthorized
	case codes.DeadlineExceeded:
		return common.ErrTimeout
	case codes.Unavailable:
		return common.ErrUnavailable
	default:
		return err
	}
}
