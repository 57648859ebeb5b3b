package workflow

import "github.com/spec-kit/transport-portal/internal/domain"

// Operation names an action gated by the access policy.
type Operation string

const (
	OpRead         Operation = "read"
	OpUpdateFields Operation = "updateFields"
	OpUpdateStatus Operation = "updateStatus"
	OpUpdateFees   Operation = "updateFees"
	OpDelete       Operation = "delete"
	OpAddNote      Operation = "addNote"
)

// ownerRule decides an owner's access given the application's status.
type ownerRule func(status domain.ApplicationStatus) bool

func always(domain.ApplicationStatus) bool { return true }

func whilePending(s domain.ApplicationStatus) bool { return s == domain.StatusPending }

// ownerRules grants Public owners their operations; anything missing is denied.
var ownerRules = map[Operation]ownerRule{
	OpRead:         always,
	OpUpdateFields: whilePending,
	OpDelete:       whilePending,
}

// Authorize reports whether actor may perform op on app. Admins may do
// everything; owners follow ownerRules; everyone else is denied.
func Authorize(app domain.Application, actor domain.Actor, op Operation) bool {
	if actor.ID == "" {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	if actor.Role != domain.RolePublic || actor.ID != app.OwnerID {
		return false
	}
	rule, ok := ownerRules[op]
	return ok && rule(app.Status)
}
