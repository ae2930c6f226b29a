package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubPublisher struct {
	err   error
	calls int
	keys  []string
}

func (s *stubPublisher) Publish(_ context.Context, routingKey string, _ any, _ map[string]string) error {
	s.calls++
	s.keys = append(s.keys, routingKey)
	return s.err
}

func TestPublishEventWithoutPublisherIsNoop(t *testing.T) {
	SetPublisher(nil)
	assert.NoError(t, PublishEvent(context.Background(), RoutingMessageCreated, EventEnvelope{}, nil))
}

func TestPublishEventForwardsAndReportsErrors(t *testing.T) {
	stub := &stubPublisher{err: errors.New("closed channel")}
	SetPublisher(stub)
	t.Cleanup(func() { SetPublisher(nil) })

	err := PublishEvent(context.Background(), RoutingChatCleared, EventEnvelope{EventName: "chat_cleared"}, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, []string{RoutingChatCleared}, stub.keys)
}

func TestBuildHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{}, BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, BuildHeaders("r", "t"))
}

func TestTraceIDWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}

func TestRequestIdentityHelpers(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws?device_id=phone&request_id=q1", nil)
	req.RemoteAddr = "10.0.0.5:5555"
	assert.Equal(t, "phone", DeviceIDFromRequest(req))
	assert.Equal(t, "q1", RequestIDFromRequest(req))
	assert.Equal(t, "10.0.0.5", IPFromRequest(req))

	req.Header.Set("X-Device-Id", "laptop")
	req.Header.Set("X-Request-Id", "h1")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "laptop", DeviceIDFromRequest(req))
	assert.Equal(t, "h1", RequestIDFromRequest(req))
	assert.Equal(t, "203.0.113.9", IPFromRequest(req))
}
