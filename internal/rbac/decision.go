package rbac

import "net/http"

// Outcome is the terminal state of one authorization decision.
type Outcome string

// Decision outcomes.
const (
	OutcomeAllowed         Outcome = "allowed"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeForbidden       Outcome = "forbidden"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeBadRequest      Outcome = "bad_request"
	OutcomeInternal        Outcome = "internal"
)

// Machine readable codes returned to clients.
const (
	CodeAllowed   = "ALLOWED"
	CodeNoAuth    = "NO_AUTH"
	CodeForbidden = "FORBIDDEN"
	CodeNotOwner  = "NOT_OWNER"
	CodeNotFound  = "NOT_FOUND"
	CodeMissingID = "MISSING_ID"
	CodeInternal  = "INTERNAL"
)

// Denial reasons recorded with every FORBIDDEN decision.
const (
	ReasonInsufficientRole       = "insufficient role"
	ReasonInsufficientPermission = "insufficient permission"
	ReasonNotOwner               = "not resource owner"
	ReasonNotOwnerNoPermission   = "not owner and lacks permission"
)

// Decision is the result of Gate.Authorize.
type Decision struct {
	Outcome Outcome
	Code    string
	// Reason is set on FORBIDDEN decisions only.
	Reason string
	// Required lists the roles or permissions the policy asked for.
	Required []string
	// Resource is the resolved target of an ownership policy, when fetched.
	Resource Resource
	Err      error
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllowed
}

// HTTPStatus maps the decision onto a response status.
func (d Decision) HTTPStatus() int {
	switch d.Outcome {
	case OutcomeAllowed:
		return http.StatusOK
	case OutcomeUnauthenticated:
		return http.StatusUnauthorized
	case OutcomeForbidden:
		return http.StatusForbidden
	case OutcomeNotFound:
		return http.StatusNotFound
	case OutcomeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func allow(res Resource) Decision {
	return Decision{Outcome: OutcomeAllowed, Code: CodeAllowed, Resource: res}
}

func unauthenticated() Decision {
	return Decision{Outcome: OutcomeUnauthenticated, Code: CodeNoAuth}
}

func forbidden(code, reason string, required []string, res Resource) Decision {
	return Decision{Outcome: OutcomeForbidden, Code: code, Reason: reason, Required: required, Resource: res}
}

func internal(err error) Decision {
	return Decision{Outcome: OutcomeInternal, Code: CodeInternal, Err: err}
}
