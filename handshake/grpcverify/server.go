// Package grpcverify exposes handshake token verification over gRPC, so a
// fleet of scanners can share one nonce store.
package grpcverify

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"vey.dev/pidcore/handshake"
)

// TokenVerifier is implemented by *handshake.Service.
type TokenVerifier interface {
	Verify(ctx context.Context, encoded string) handshake.Result
}

type Server struct {
	UnimplementedVerifierServer
	Verifier TokenVerifier
}

func (s *Server) Verify(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if s == nil || s.Verifier == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing verifier")
	}
	return toStruct(s.Verifier.Verify(ctx, in.GetValue()))
}

func toStruct(r handshake.Result) (*structpb.Struct, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode result")
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode result")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode result")
	}
	return out, nil
}

func fromStruct(s *structpb.Struct) (handshake.Result, error) {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return handshake.Result{}, err
	}
	var r handshake.Result
	if err := json.Unmarshal(b, &r); err != nil {
		return handshake.Result{}, err
	}
	return r, nil
}

// Client verifies tokens against a remote Verifier.
type Client struct {
	cc     *grpc.ClientConn
	client VerifierClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ TokenVerifier = (*Client)(nil)

// Dial connects to target. Extra dial options (for example SPIFFE mTLS
// transport credentials) replace the insecure default.
func Dial(target string, extra ...grpc.DialOption) (*Client, error) {
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, extra...)
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewVerifierClient(cc)}
}

func (c *Client) Close() error { return c.cc.Close() }

// VerifyRemote returns the remote result or the transport error.
func (c *Client) VerifyRemote(ctx context.Context, encoded string) (handshake.Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	out, err := c.client.Verify(ctx, wrapperspb.String(encoded))
	if err != nil {
		return handshake.Result{}, err
	}
	return fromStruct(out)
}

// Verify reports transport failures as an unavailable nonce store, so a
// scanner that cannot reach the verifier always rejects.
func (c *Client) Verify(ctx context.Context, encoded string) handshake.Result {
	r, err := c.VerifyRemote(ctx, encoded)
	if err != nil {
		return handshake.Result{Reason: handshake.ReasonUnavailable}
	}
	return r
}
