package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote LipSync service
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a LipSync server at target. Extra options are appended
// after the defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	defaults := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	conn, err := grpc.NewClient(target, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create lipsync client: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Analyze requests the analysis of text. A nil durationMs asks the server
// to estimate the duration.
func (c *Client) Analyze(ctx context.Context, text string, durationMs *float64) (*structpb.Struct, error) {
	fields := map[string]interface{}{"text": text}
	if durationMs != nil {
		fields["duration_ms"] = *durationMs
	}
	return c.invoke(ctx, analyzeMethod, fields)
}

// ResolveAsset requests the image paths for a state
func (c *Client) ResolveAsset(ctx context.Context, expression, eye, mouth string) (*structpb.Struct, error) {
	return c.invoke(ctx, resolveAssetMethod, map[string]interface{}{
		"expression": expression,
		"eye":        eye,
		"mouth":      mouth,
	})
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]interface{}) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Conn exposes the underlying connection, e.g. for health checks
func (c *Client) Conn() *grpc.ClientConn {
	return c.conn
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}
