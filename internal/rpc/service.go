package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "timebox.v1.PlannerService"

// Full method names, as seen by interceptors.
const (
	MethodRegister    = "/" + ServiceName + "/Register"
	MethodLogin       = "/" + ServiceName + "/Login"
	MethodRefresh     = "/" + ServiceName + "/Refresh"
	MethodLogout      = "/" + ServiceName + "/Logout"
	MethodGetDayPlan  = "/" + ServiceName + "/GetDayPlan"
	MethodSaveDayPlan = "/" + ServiceName + "/SaveDayPlan"
)

type PlannerServer interface {
	Register(context.Context, *RegisterRequest) (*Session, error)
	Login(context.Context, *LoginRequest) (*Session, error)
	Refresh(context.Context, *RefreshRequest) (*Session, error)
	Logout(context.Context, *Empty) (*Empty, error)
	GetDayPlan(context.Context, *GetDayPlanRequest) (*GetDayPlanResponse, error)
	SaveDayPlan(context.Context, *SaveDayPlanRequest) (*Empty, error)
}

func RegisterPlannerServer(s grpc.ServiceRegistrar, srv PlannerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary adapts one PlannerServer method to the handler shape of
// grpc.MethodDesc.
func unary[Req any, Resp any, PReq interface {
	*Req
	Message
}](method string, call func(PlannerServer, context.Context, PReq) (Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PlannerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PlannerServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlannerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unary[RegisterRequest](MethodRegister, PlannerServer.Register)},
		{MethodName: "Login", Handler: unary[LoginRequest](MethodLogin, PlannerServer.Login)},
		{MethodName: "Refresh", Handler: unary[RefreshRequest](MethodRefresh, PlannerServer.Refresh)},
		{MethodName: "Logout", Handler: unary[Empty](MethodLogout, PlannerServer.Logout)},
		{MethodName: "GetDayPlan", Handler: unary[GetDayPlanRequest](MethodGetDayPlan, PlannerServer.GetDayPlan)},
		{MethodName: "SaveDayPlan", Handler: unary[SaveDayPlanRequest](MethodSaveDayPlan, PlannerServer.SaveDayPlan)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "timebox/v1/planner.proto",
}

// PlannerClient is a thin stub over a ClientConn. The conn must use Codec,
// see DialOptions.
type PlannerClient struct {
	cc grpc.ClientConnInterface
}

func NewPlannerClient(cc grpc.ClientConnInterface) *PlannerClient {
	return &PlannerClient{cc: cc}
}

// DialOptions forces Codec on every call made through the conn.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{}))}
}

func (c *PlannerClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*Session, error) {
	out := new(Session)
	return out, c.cc.Invoke(ctx, MethodRegister, in, out, opts...)
}

func (c *PlannerClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*Session, error) {
	out := new(Session)
	return out, c.cc.Invoke(ctx, MethodLogin, in, out, opts...)
}

func (c *PlannerClient) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*Session, error) {
	out := new(Session)
	return out, c.cc.Invoke(ctx, MethodRefresh, in, out, opts...)
}

func (c *PlannerClient) Logout(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodLogout, &Empty{}, &Empty{}, opts...)
}

func (c *PlannerClient) GetDayPlan(ctx context.Context, in *GetDayPlanRequest, opts ...grpc.CallOption) (*GetDayPlanResponse, error) {
	out := new(GetDayPlanResponse)
	return out, c.cc.Invoke(ctx, MethodGetDayPlan, in, out, opts...)
}

func (c *PlannerClient) SaveDayPlan(ctx context.Context, in *SaveDayPlanRequest, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodSaveDayPlan, in, &Empty{}, opts...)
}
