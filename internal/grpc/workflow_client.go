package grpc

import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"messaging-service/internal/services"
)

const resolveConversationMethod = "/workflow.v1.EngagementService/ResolveConversation"

// WorkflowClient asks the workflow service who the parties of a conversation
// key are and whether they may talk.
type WorkflowClient struct {
	conn grpc.ClientConnInterface
}

// NewWorkflowClient constructs the wrapper.
func NewWorkflowClient(conn grpc.ClientConnInterface) *WorkflowClient {
	return &WorkflowClient{conn: conn}
}

// ResolveConversation implements services.WorkflowClient. Ids travel as
// decimal strings since struct numbers are doubles.
func (w *WorkflowClient) ResolveConversation(ctx context.Context, callerID int64, conversationKey int64) (services.Engagement, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"caller_id":     strconv.FormatInt(callerID, 10),
		"assignment_id": strconv.FormatInt(conversationKey, 10),
	})
	if err != nil {
		return services.Engagement{}, fmt.Errorf("build request: %w", err)
	}

	resp := new(structpb.Struct)
	if err := w.conn.Invoke(ctx, resolveConversationMethod, req, resp); err != nil {
		return services.Engagement{}, err
	}

	fields := resp.GetFields()
	clientID, err := idField(fields["client_id"])
	if err != nil {
		return services.Engagement{}, fmt.Errorf("client_id: %w", err)
	}
	interpreterID, err := idField(fields["interpreter_id"])
	if err != nil {
		return services.Engagement{}, fmt.Errorf("interpreter_id: %w", err)
	}
	return services.Engagement{
		ClientID:      clientID,
		InterpreterID: interpreterID,
		Eligible:      fields["eligible"].GetBoolValue(),
	}, nil
}

// idField reads an id sent either as a decimal string or, by older servers,
// as a number.
func idField(v *structpb.Value) (int64, error) {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return strconv.ParseInt(kind.StringValue, 10, 64)
	case *structpb.Value_NumberValue:
		return int64(kind.NumberValue), nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("unexpected id type %T", v.GetKind())
}

var _ services.WorkflowClient = (*WorkflowClient)(nil)
