// Package authstate holds the canonical client-side authentication snapshot.
package authstate

import "strings"

// User is the identity derived from provider session data. It is never
// constructed client-side without a backing provider payload.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// NewUser builds a User from provider fields. When the provider supplies
// no display name, the local part of the email is used instead.
func NewUser(id, email, name string) *User {
	if name == "" {
		name = email
		if at := strings.Index(email, "@"); at >= 0 {
			name = email[:at]
		}
	}
	return &User{ID: id, Email: email, Name: name}
}

// AuthState is the full client-side authentication snapshot. It is owned
// by the Store and mutated only through the Store's operations; every
// mutation is a full-state replace so the invariants stay atomic.
type AuthState struct {
	IsAuthenticated bool
	User            *User
	Loading         bool
	Err             string
	LoggingOut      bool
}

// LoggedOut is the canonical fully logged-out snapshot.
func LoggedOut() AuthState {
	return AuthState{}
}

// Authenticated builds the snapshot for an established session.
func Authenticated(user *User) AuthState {
	return AuthState{IsAuthenticated: true, User: user}
}

// Failed builds the logged-out snapshot carrying an error message.
func Failed(msg string) AuthState {
	return AuthState{Err: msg}
}
