package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"loyalpay/internal/model"
	"loyalpay/internal/service"
)

// ErrorInfo attached to FailedPrecondition replies for a short balance.
const (
	ErrorDomain               = "loyalpay"
	ReasonInsufficientBalance = "INSUFFICIENT_BALANCE"
)

type Server struct {
	svc  service.PaymentService
	srv  *grpc.Server
	addr string
}

func NewServer(addr string, svc service.PaymentService) *Server {
	s := &Server{svc: svc, addr: addr, srv: grpc.NewServer()}
	RegisterPaymentServer(s.srv, s)
	return s
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve runs the gRPC server on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("gRPC server is running", "addr", lis.Addr().String())
	return s.srv.Serve(lis)
}

func (s *Server) Stop(ctx context.Context) error {
	s.srv.GracefulStop()
	return nil
}

func (s *Server) Redeem(ctx context.Context, req *model.RedeemRequest) (*model.RedeemResult, error) {
	res, err := s.svc.Redeem(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return res, nil
}

func (s *Server) GetBalance(ctx context.Context, req *UserRequest) (*model.Balance, error) {
	res, err := s.svc.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return res, nil
}

func (s *Server) GetHistory(ctx context.Context, req *UserRequest) (*model.History, error) {
	res, err := s.svc.GetHistory(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return res, nil
}

func toStatus(err error) error {
	var (
		verr *service.ValidationError
		nerr *service.NotFoundError
		ierr *service.InsufficientBalanceError
	)
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Message)
	case errors.As(err, &nerr):
		return status.Error(codes.NotFound, nerr.Message)
	case errors.As(err, &ierr):
		return insufficientBalanceStatus(ierr)
	default:
		slog.Error("grpc: request failed", "error", err)
		return status.Error(codes.Internal, "internal server error")
	}
}

func insufficientBalanceStatus(e *service.InsufficientBalanceError) error {
	st := status.New(codes.FailedPrecondition, e.Error())
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason: ReasonInsufficientBalance,
		Domain: ErrorDomain,
		Metadata: map[string]string{
			"currentBalance": e.CurrentBalance.String(),
			"requiredAmount": e.RequiredAmount.String(),
		},
	})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}
