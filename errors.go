package xpost

import (
	"encoding/json"
	"fmt"
)

// ConfigError reports invalid or incomplete client configuration. It is
// raised at construction time and is never retryable.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "xpost: config: " + e.Reason
}

// TransportError reports a non-2xx HTTP response. Message carries the first
// server-supplied error message when the payload contained one; Payload is
// the raw response body for diagnostics.
type TransportError struct {
	Status  int
	Message string
	Payload []byte
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("xpost: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("xpost: HTTP %d: %s", e.Status, truncateBytes(e.Payload, 200))
}

// NotFoundError reports that an expected result was absent from every known
// response shape.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return "xpost: not found: " + e.What
}

// Upload phases, in protocol order.
const (
	phaseImage    = "IMAGE"
	phaseInit     = "INIT"
	phaseAppend   = "APPEND"
	phaseFinalize = "FINALIZE"
	phaseStatus   = "STATUS"
	phaseMetadata = "METADATA"
)

// UploadError reports a failed phase of the media upload protocol. The
// remaining phases are abandoned; the caller must restart the whole upload.
type UploadError struct {
	Phase string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("xpost: upload %s: %v", e.Phase, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// firstErrorMessage extracts the first message from the nested errors list
// the service embeds in failure payloads. Returns "" if the body is not JSON
// or carries no such list.
func firstErrorMessage(body []byte) string {
	var probe struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &probe) != nil || len(probe.Errors) == 0 {
		return ""
	}
	return probe.Errors[0].Message
}

func truncateBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
