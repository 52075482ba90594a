package payments

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// GatewayError reports a failed call to the payment gateway. A Timeout error does not
// prove the request never reached the gateway.
type GatewayError struct {
	Op         string
	StatusCode int
	Timeout    bool
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("gateway %s timed out: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("gateway %s returned status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func excerpt(body []byte) string {
	const excerptLimit = 512
	if len(body) > excerptLimit {
		return string(body[:excerptLimit]) + "..."
	}
	return string(body)
}
