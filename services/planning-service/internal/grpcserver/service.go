package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "planning.v1.AvailabilityService"

const (
	MethodResolveAvailability = "/" + ServiceName + "/ResolveAvailability"
	MethodWeekWindow          = "/" + ServiceName + "/WeekWindow"
	MethodDeduplicate         = "/" + ServiceName + "/Deduplicate"
)

// AvailabilityServer is the planning RPC surface. Messages are
// google.protobuf.Struct so clients need no generated stubs.
type AvailabilityServer interface {
	ResolveAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	WeekWindow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Deduplicate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(AvailabilityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name, fullMethod string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AvailabilityServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(AvailabilityServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ResolveAvailability", MethodResolveAvailability, AvailabilityServer.ResolveAvailability),
		unary("WeekWindow", MethodWeekWindow, AvailabilityServer.WeekWindow),
		unary("Deduplicate", MethodDeduplicate, AvailabilityServer.Deduplicate),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "planning/v1/availability.proto",
}

// Client calls AvailabilityService over conn.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveAvailability asks for one slot. An empty weekday lets the server
// derive it from the date; a non-empty one must agree with the date.
func (c *Client) ResolveAvailability(ctx context.Context, personID, date, weekday, slot string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req := map[string]any{"person_id": personID, "date": date, "slot": slot}
	if weekday != "" {
		req["weekday"] = weekday
	}
	return c.call(ctx, MethodResolveAvailability, req, opts...)
}

func (c *Client) WeekWindow(ctx context.Context, date string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodWeekWindow, map[string]any{"date": date}, opts...)
}

func (c *Client) Deduplicate(ctx context.Context, personID string, dryRun bool, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodDeduplicate, map[string]any{"person_id": personID, "dry_run": dryRun}, opts...)
}
