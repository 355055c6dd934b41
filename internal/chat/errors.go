package chat

import "fmt"

type RejectKind string

const (
	RejectValidation    RejectKind = "validation"
	RejectAuthorization RejectKind = "authorization"
	RejectNotFound      RejectKind = "not_found"
	RejectStorage       RejectKind = "storage"
)

// Reject is a per-operation failure reported back to the originating
// connection only. It never closes the connection and is never
// broadcast.
type Reject struct {
	Kind   RejectKind
	Reason string
}

func (r *Reject) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
}

func rejectf(kind RejectKind, format string, args ...any) *Reject {
	return &Reject{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
