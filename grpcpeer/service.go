package grpcpeer

import (
	"context"

	"google.golang.org/grpc"
)

const deliverMethod = "/procomm.Mailbox/Deliver"

type mailboxServer interface {
	Deliver(ctx context.Context, in *envelope) (*ack, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "procomm.Mailbox",
	HandlerType: (*mailboxServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    deliverHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "procomm/mailbox",
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(mailboxServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: deliverMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(mailboxServer).Deliver(ctx, req.(*envelope))
	}
	return interceptor(ctx, in, info, handler)
}
