package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const validateTokenMethod = "/identity.v1.AuthService/ValidateToken"

var ErrInvalidToken = errors.New("invalid token")

// AuthClient resolves bearer tokens into user ids through the identity service.
type AuthClient struct {
	conn grpc.ClientConnInterface
}

// NewAuthClient constructs the wrapper.
func NewAuthClient(conn grpc.ClientConnInterface) *AuthClient {
	return &AuthClient{conn: conn}
}

// ValidateToken verifies the token and returns the authenticated user id.
func (a *AuthClient) ValidateToken(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}
	resp := new(wrapperspb.Int64Value)
	if err := a.conn.Invoke(ctx, validateTokenMethod, wrapperspb.String(token), resp); err != nil {
		return 0, err
	}
	if resp.GetValue() <= 0 {
		return 0, ErrInvalidToken
	}
	return resp.GetValue(), nil
}
