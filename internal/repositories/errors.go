package repositories

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
)

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrSameParticipant = errors.New("cannot create chat with self")
	// ErrTransient marks a failure of the database connection rather than of the statement.
	ErrTransient = errors.New("transient store failure")
)

// maxRetries bounds how often an idempotent statement is retried after a transient failure.
var maxRetries uint64 = 3

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// classify tags connection-class failures with ErrTransient.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrTransient) || !isTransient(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return b
}

// withRetry runs an idempotent statement, retrying transient failures only.
func withRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), maxRetries), ctx)
	err := backoff.Retry(func() error {
		err := op()
		if err == nil || isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	return classify(err)
}
