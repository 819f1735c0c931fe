// ABOUTME: Closed enumeration of tool failure kinds and the Failure value type.
// ABOUTME: Kind strings double as log fields and metrics labels.

package classify

// Kind is the category of a failed tool call.
type Kind int

const (
	Unknown Kind = iota
	AuthInvalid
	RateLimited
	BadRequest
	NotFound
	MethodNotAllowed
	NetworkTimeout
	ServerError
)

var kindNames = map[Kind]string{
	Unknown:          "unknown",
	AuthInvalid:      "auth_invalid",
	RateLimited:      "rate_limited",
	BadRequest:       "bad_request",
	NotFound:         "not_found",
	MethodNotAllowed: "method_not_allowed",
	NetworkTimeout:   "network_timeout",
	ServerError:      "server_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	return []Kind{Unknown, AuthInvalid, RateLimited, BadRequest, NotFound, MethodNotAllowed, NetworkTimeout, ServerError}
}

// Failure is a classified tool-call failure.
type Failure struct {
	Kind       Kind
	Message    string
	UserFacing bool

	// Cause is the raw failure text, kept for logs.
	Cause string

	// Retryable suggests the same call may succeed later.
	Retryable bool
}

func (f Failure) Error() string { return f.Message }
