package domain

import "time"

// Role differentiates citizens from ministry staff.
type Role string

const (
	RolePublic Role = "Public"
	RoleAdmin  Role = "Admin"
)

// User is an account that submits or reviews applications.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	NationalID   string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor holds the Admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// ActorOf derives the actor for an authenticated user.
func ActorOf(u *User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{ID: u.ID, Role: u.Role}
}
