// Package agentclient implements the upstream-agent adapter: an HTTP(S)
// client that replays another agent's probe/current/sample stream into the
// head of this agent's pipeline.
package agentclient

import "fmt"

// ErrorCode classifies adapter failures and selects the recovery action.
type ErrorCode int

const (
	// InstanceIDChanged invalidates the next-sequence watermark; the
	// adapter clears feedback and reconnects.
	InstanceIDChanged ErrorCode = iota + 1
	// RestartStream restarts the sample stream from the current sequence.
	RestartStream
	// RetryRequest ends the session; the adapter reconnects after the next
	// backoff delay, which starts at the reconnect interval and grows up to
	// four times it.
	RetryRequest
	// StreamClosed reports the remote closed the stream; reconnect.
	StreamClosed
	// MultipartStreamFailed switches the adapter to polling and
	// reconnects.
	MultipartStreamFailed
	// AdapterFailed is fatal to this source; the contract is notified.
	AdapterFailed
)

func (c ErrorCode) String() string {
	switch c {
	case InstanceIDChanged:
		return "INSTANCE_ID_CHANGED"
	case RestartStream:
		return "RESTART_STREAM"
	case RetryRequest:
		return "RETRY_REQUEST"
	case StreamClosed:
		return "STREAM_CLOSED"
	case MultipartStreamFailed:
		return "MULTIPART_STREAM_FAILED"
	case AdapterFailed:
		return "ADAPTER_FAILED"
	}
	return "UNKNOWN"
}

// AdapterError wraps a transport or protocol failure with its code.
type AdapterError struct {
	Code  ErrorCode
	Cause error
}

func (e *AdapterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	return e.Code.String()
}

func (e *AdapterError) Unwrap() error { return e.Cause }

func adapterErr(code ErrorCode, cause error) *AdapterError {
	return &AdapterError{Code: code, Cause: cause}
}
