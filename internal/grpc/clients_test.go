package grpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func unaryMethod[Req any, PReq interface{ *Req }](name string, handle func(context.Context, PReq) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			return handle(ctx, in)
		},
	}
}

func startServer(t *testing.T, desc *grpc.ServiceDesc) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(desc, struct{}{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func authService() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: "identity.v1.AuthService",
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{
			unaryMethod[wrapperspb.StringValue]("ValidateToken", func(_ context.Context, in *wrapperspb.StringValue) (interface{}, error) {
				switch in.GetValue() {
				case "good":
					return wrapperspb.Int64(7), nil
				case "anonymous":
					return wrapperspb.Int64(0), nil
				}
				return nil, status.Error(codes.Unauthenticated, "bad token")
			}),
		},
	}
}

func TestAuthClientValidateToken(t *testing.T) {
	client := NewAuthClient(startServer(t, authService()))
	ctx := context.Background()

	userID, err := client.ValidateToken(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)

	_, err = client.ValidateToken(ctx, "anonymous")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = client.ValidateToken(ctx, "forged")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.ValidateToken(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWorkflowClientResolveConversation(t *testing.T) {
	var seen map[string]interface{}
	desc := &grpc.ServiceDesc{
		ServiceName: "workflow.v1.EngagementService",
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{
			unaryMethod[structpb.Struct]("ResolveConversation", func(_ context.Context, in *structpb.Struct) (interface{}, error) {
				seen = in.AsMap()
				switch in.GetFields()["assignment_id"].GetStringValue() {
				case "404":
					return nil, status.Error(codes.NotFound, "no such assignment")
				case "9007199254740993":
					return structpb.NewStruct(map[string]interface{}{
						"client_id":      "9007199254740993",
						"interpreter_id": "9007199254740995",
						"eligible":       false,
					})
				case "500":
					return structpb.NewStruct(map[string]interface{}{
						"client_id": "not-a-number",
					})
				}
				return structpb.NewStruct(map[string]interface{}{
					"client_id":      float64(1),
					"interpreter_id": "2",
					"eligible":       true,
				})
			}),
		},
	}
	client := NewWorkflowClient(startServer(t, desc))

	engagement, err := client.ResolveConversation(context.Background(), 1, 55)
	require.NoError(t, err)
	assert.Equal(t, int64(1), engagement.ClientID)
	assert.Equal(t, int64(2), engagement.InterpreterID)
	assert.True(t, engagement.Eligible)
	assert.Equal(t, "1", seen["caller_id"])
	assert.Equal(t, "55", seen["assignment_id"])

	large, err := client.ResolveConversation(context.Background(), 1, 9007199254740993)
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), large.ClientID)
	assert.Equal(t, int64(9007199254740995), large.InterpreterID)
	assert.False(t, large.Eligible)

	_, err = client.ResolveConversation(context.Background(), 1, 500)
	assert.ErrorContains(t, err, "client_id")

	_, err = client.ResolveConversation(context.Background(), 1, 404)
	assert.Equal(t, codes.NotFound, status.Code(err))
}
