package command

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/stellar-auth/auth"
)

// Client is a typed client for the command service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

// LoadTransitSchedule uploads a mission window.
func (c *Client) LoadTransitSchedule(ctx context.Context, w auth.MissionWindow, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "LoadTransitSchedule", WindowToStruct(w), new(emptypb.Empty), opts...)
}

// AuthStart requests an emergency bypass with key.
func (c *Client) AuthStart(ctx context.Context, key uint32, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "AuthStart", wrapperspb.UInt32(key), new(emptypb.Empty), opts...)
}

// AuthReset forces the engine back to Locked.
func (c *Client) AuthReset(ctx context.Context, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "AuthReset", new(emptypb.Empty), new(emptypb.Empty), opts...)
}

// GetStatus returns the status report as a generic map.
func (c *Client) GetStatus(ctx context.Context, opts ...grpc.CallOption) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "GetStatus", new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// PushAttitude sends a yaw sample in degrees.
func (c *Client) PushAttitude(ctx context.Context, yaw float32, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "PushAttitude", wrapperspb.Float(yaw), new(emptypb.Empty), opts...)
}

// PushLight sends a light sensor sample.
func (c *Client) PushLight(ctx context.Context, light float32, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "PushLight", wrapperspb.Float(light), new(emptypb.Empty), opts...)
}
