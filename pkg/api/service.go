package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name of a worker
const ServiceName = "flock.v1.Worker"

// Full method names
const (
	MethodCPUCount   = "/" + ServiceName + "/CPUCount"
	MethodCalculate  = "/" + ServiceName + "/Calculate"
	MethodOpen       = "/" + ServiceName + "/Open"
	MethodCloseStore = "/" + ServiceName + "/CloseStore"
	MethodGeneration = "/" + ServiceName + "/Generation"
	MethodShutdown   = "/" + ServiceName + "/Shutdown"
	MethodStats      = "/" + ServiceName + "/Stats"
)

// WorkerServer is the contract every worker service implementation satisfies.
// Messages are protobuf well-known types; see block.go for the field layout.
type WorkerServer interface {
	// CPUCount returns the logical CPU count of the worker host
	CPUCount(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
	// Calculate performs one block of kernel work and returns its contribution
	Calculate(context.Context, *structpb.Struct) (*wrapperspb.Int64Value, error)
	// Open connects the worker to a dedup store collection
	Open(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	// CloseStore releases the dedup store connection
	CloseStore(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	// Generation returns the launch token of this worker process
	Generation(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Shutdown stops the worker if the token matches its generation
	Shutdown(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	// Stats returns a runtime snapshot of the worker host
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// WorkerClient is the client side of WorkerServer
type WorkerClient interface {
	CPUCount(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error)
	Calculate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error)
	Open(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	CloseStore(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Generation(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	Shutdown(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Stats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type workerClient struct {
	cc grpc.ClientConnInterface
}

// NewWorkerClient wraps a connection in the worker contract
func NewWorkerClient(cc grpc.ClientConnInterface) WorkerClient {
	return &workerClient{cc: cc}
}

func (c *workerClient) CPUCount(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, MethodCPUCount, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerClient) Calculate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, MethodCalculate, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerClient) Open(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, MethodOpen, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerClient) CloseStore(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, MethodCloseStore, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerClient) Generation(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGeneration, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerClient) Shutdown(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, MethodShutdown, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerClient) Stats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodStats, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterWorkerServer registers a worker implementation on a gRPC server
func RegisterWorkerServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&WorkerServiceDesc, srv)
}

// unaryHandler adapts one typed method into a grpc.MethodHandler
func unaryHandler[Req any, Resp any](fullMethod string, call func(WorkerServer, context.Context, *Req) (*Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		ws, ok := srv.(WorkerServer)
		if !ok {
			return nil, fmt.Errorf("server does not implement %s", ServiceName)
		}
		if interceptor == nil {
			return call(ws, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ws, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// WorkerServiceDesc describes the worker service for grpc.Server
var WorkerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CPUCount",
			Handler:    unaryHandler(MethodCPUCount, WorkerServer.CPUCount),
		},
		{
			MethodName: "Calculate",
			Handler:    unaryHandler(MethodCalculate, WorkerServer.Calculate),
		},
		{
			MethodName: "Open",
			Handler:    unaryHandler(MethodOpen, WorkerServer.Open),
		},
		{
			MethodName: "CloseStore",
			Handler:    unaryHandler(MethodCloseStore, WorkerServer.CloseStore),
		},
		{
			MethodName: "Generation",
			Handler:    unaryHandler(MethodGeneration, WorkerServer.Generation),
		},
		{
			MethodName: "Shutdown",
			Handler:    unaryHandler(MethodShutdown, WorkerServer.Shutdown),
		},
		{
			MethodName: "Stats",
			Handler:    unaryHandler(MethodStats, WorkerServer.Stats),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flock/v1/worker.proto",
}
