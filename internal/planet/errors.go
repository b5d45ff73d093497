package planet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// RemoteAPIError means the provider rejected or failed a call, or could not
// be reached.
type RemoteAPIError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *RemoteAPIError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("planet %s: status %d: %s", e.Op, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("planet %s: status %d", e.Op, e.Status)
	default:
		return fmt.Sprintf("planet %s: %v", e.Op, e.Err)
	}
}

func (e *RemoteAPIError) Unwrap() error { return e.Err }

func (e *RemoteAPIError) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

func (e *RemoteAPIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// Temporary reports whether repeating the call may succeed.
func (e *RemoteAPIError) Temporary() bool {
	if e.Status == 0 {
		return e.Err != nil && !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
	}
	return e.RateLimited() || e.Status >= 500
}

// RemoteClientError means the request could not be formed locally. It
// points at a bug on this side rather than at the provider.
type RemoteClientError struct {
	Op  string
	Err error
}

func (e *RemoteClientError) Error() string {
	return fmt.Sprintf("planet %s: bad request: %v", e.Op, e.Err)
}

func (e *RemoteClientError) Unwrap() error { return e.Err }

// IsTemporary reports whether err is a RemoteAPIError worth retrying.
func IsTemporary(err error) bool {
	var ae *RemoteAPIError
	return errors.As(err, &ae) && ae.Temporary()
}

// Kind names the error class for logs and job records.
func Kind(err error) string {
	var ae *RemoteAPIError
	var ce *RemoteClientError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return "remote_client"
	case errors.As(err, &ae):
		return "remote_api"
	default:
		return "other"
	}
}
