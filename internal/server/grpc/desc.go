package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"github.com/and161185/goph-talk/internal/api"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gophtalk.v1.Chat"

// Full method names.
const (
	MethodRegister         = "/" + ServiceName + "/Register"
	MethodLogin            = "/" + ServiceName + "/Login"
	MethodSendVerification = "/" + ServiceName + "/SendVerification"
	MethodVerifyPhone      = "/" + ServiceName + "/VerifyPhone"
	MethodMe               = "/" + ServiceName + "/Me"
	MethodContacts         = "/" + ServiceName + "/Contacts"
	MethodHistory          = "/" + ServiceName + "/History"
	MethodConnect          = "/" + ServiceName + "/Connect"
)

// ChatServer is the server API for the Chat service.
type ChatServer interface {
	Register(context.Context, *api.RegisterRequest) (*api.AuthResponse, error)
	Login(context.Context, *api.LoginRequest) (*api.AuthResponse, error)
	SendVerification(context.Context, *api.SendVerificationRequest) (*api.OKResponse, error)
	VerifyPhone(context.Context, *api.VerifyPhoneRequest) (*api.OKResponse, error)
	Me(context.Context, *api.Empty) (*api.MeResponse, error)
	Contacts(context.Context, *api.Empty) (*api.ContactsResponse, error)
	History(context.Context, *api.HistoryRequest) (*api.HistoryResponse, error)
	Connect(ConnectServer) error
}

// ConnectServer is the server side of the Connect stream.
type ConnectServer interface {
	Send(*api.Frame) error
	Recv() (*api.Frame, error)
	grpc.ServerStream
}

type connectServer struct{ grpc.ServerStream }

func (x *connectServer) Send(f *api.Frame) error { return x.ServerStream.SendMsg(f) }

func (x *connectServer) Recv() (*api.Frame, error) {
	f := new(api.Frame)
	if err := x.ServerStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

func unaryMethod[Req, Resp any](name string, call func(ChatServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ChatServiceDesc describes the Chat service for grpc.Server.RegisterService.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Register", ChatServer.Register),
		unaryMethod("Login", ChatServer.Login),
		unaryMethod("SendVerification", ChatServer.SendVerification),
		unaryMethod("VerifyPhone", ChatServer.VerifyPhone),
		unaryMethod("Me", ChatServer.Me),
		unaryMethod("Contacts", ChatServer.Contacts),
		unaryMethod("History", ChatServer.History),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Connect",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(ChatServer).Connect(&connectServer{stream})
			},
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "gophtalk/v1/chat",
}

// RegisterChatServer registers srv on s.
func RegisterChatServer(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

// Client is a thin Chat client that always speaks the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, in *api.RegisterRequest, opts ...grpc.CallOption) (*api.AuthResponse, error) {
	return invoke[api.AuthResponse](ctx, c.cc, MethodRegister, in, opts)
}

func (c *Client) Login(ctx context.Context, in *api.LoginRequest, opts ...grpc.CallOption) (*api.AuthResponse, error) {
	return invoke[api.AuthResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *Client) SendVerification(ctx context.Context, in *api.SendVerificationRequest, opts ...grpc.CallOption) (*api.OKResponse, error) {
	return invoke[api.OKResponse](ctx, c.cc, MethodSendVerification, in, opts)
}

func (c *Client) VerifyPhone(ctx context.Context, in *api.VerifyPhoneRequest, opts ...grpc.CallOption) (*api.OKResponse, error) {
	return invoke[api.OKResponse](ctx, c.cc, MethodVerifyPhone, in, opts)
}

func (c *Client) Me(ctx context.Context, opts ...grpc.CallOption) (*api.MeResponse, error) {
	return invoke[api.MeResponse](ctx, c.cc, MethodMe, &api.Empty{}, opts)
}

func (c *Client) Contacts(ctx context.Context, opts ...grpc.CallOption) (*api.ContactsResponse, error) {
	return invoke[api.ContactsResponse](ctx, c.cc, MethodContacts, &api.Empty{}, opts)
}

func (c *Client) History(ctx context.Context, in *api.HistoryRequest, opts ...grpc.CallOption) (*api.HistoryResponse, error) {
	return invoke[api.HistoryResponse](ctx, c.cc, MethodHistory, in, opts)
}

// ConnectClient is the client side of the Connect stream.
type ConnectClient interface {
	Send(*api.Frame) error
	Recv() (*api.Frame, error)
	grpc.ClientStream
}

type connectClient struct{ grpc.ClientStream }

func (x *connectClient) Send(f *api.Frame) error { return x.ClientStream.SendMsg(f) }

func (x *connectClient) Recv() (*api.Frame, error) {
	f := new(api.Frame)
	if err := x.ClientStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Connect opens the live stream. The bearer token travels in the call's metadata.
func (c *Client) Connect(ctx context.Context, opts ...grpc.CallOption) (ConnectClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	st, err := c.cc.NewStream(ctx, &ChatServiceDesc.Streams[0], MethodConnect, opts...)
	if err != nil {
		return nil, err
	}
	return &connectClient{st}, nil
}
