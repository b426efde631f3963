package rpc

import (
	"context"

	"google.golang.org/grpc"
)

func RegisterTaskServiceServer(s grpc.ServiceRegistrar, srv TaskServiceServer) {
	s.RegisterService(&TaskServiceDesc, srv)
}

// TaskServiceDesc описан вручную: сообщения кодируются jsonCodec
var TaskServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TaskServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetTask", Handler: getTaskHandler},
		{MethodName: "TransitionStatus", Handler: transitionStatusHandler},
		{MethodName: "AssignResource", Handler: assignResourceHandler},
		{MethodName: "AddNote", Handler: addNoteHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "civic/task/v1/task.json",
}

func unary[Req any, Resp any](method string, call func(TaskServiceServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TaskServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TaskServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	getTaskHandler = unary("GetTask", func(s TaskServiceServer, ctx context.Context, r *GetTaskRequest) (*TaskResponse, error) {
		return s.GetTask(ctx, r)
	})
	transitionStatusHandler = unary("TransitionStatus", func(s TaskServiceServer, ctx context.Context, r *TransitionStatusRequest) (*TaskResponse, error) {
		return s.TransitionStatus(ctx, r)
	})
	assignResourceHandler = unary("AssignResource", func(s TaskServiceServer, ctx context.Context, r *AssignResourceRequest) (*AssignResourceResponse, error) {
		return s.AssignResource(ctx, r)
	})
	addNoteHandler = unary("AddNote", func(s TaskServiceServer, ctx context.Context, r *AddNoteRequest) (*TaskResponse, error) {
		return s.AddNote(ctx, r)
	})
)
