package grpc

import (
	"context"

	"google.golang.org/grpc"

	"loyalpay/internal/model"
)

const (
	serviceName      = "loyalpay.v1.PaymentService"
	methodRedeem     = "/" + serviceName + "/Redeem"
	methodGetBalance = "/" + serviceName + "/GetBalance"
	methodGetHistory = "/" + serviceName + "/GetHistory"
)

type UserRequest struct {
	UserID string `json:"userId"`
}

// PaymentServer is the server API of loyalpay.v1.PaymentService.
type PaymentServer interface {
	Redeem(context.Context, *model.RedeemRequest) (*model.RedeemResult, error)
	GetBalance(context.Context, *UserRequest) (*model.Balance, error)
	GetHistory(context.Context, *UserRequest) (*model.History, error)
}

func RegisterPaymentServer(s grpc.ServiceRegistrar, srv PaymentServer) {
	s.RegisterService(&paymentServiceDesc, srv)
}

var paymentServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PaymentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Redeem", Handler: redeemHandler},
		{MethodName: "GetBalance", Handler: getBalanceHandler},
		{MethodName: "GetHistory", Handler: getHistoryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "loyalpay/v1/payment",
}

func redeemHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(model.RedeemRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentServer).Redeem(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRedeem}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PaymentServer).Redeem(ctx, req.(*model.RedeemRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getBalanceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UserRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentServer).GetBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetBalance}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PaymentServer).GetBalance(ctx, req.(*UserRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getHistoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UserRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentServer).GetHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetHistory}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PaymentServer).GetHistory(ctx, req.(*UserRequest))
	}
	return interceptor(ctx, in, info, handler)
}
