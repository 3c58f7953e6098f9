package auth

import "github.com/pkg/errors"

// ErrUnauthorized is returned when a non-admin caller attempts a mutation.
var ErrUnauthorized = errors.New("auth: caller is not the admin")

// Gate admits only the admin identity captured when it was created.
type Gate struct {
	admin Identity
}

// NewGate returns a gate for admin. The admin can never be changed afterwards.
func NewGate(admin Identity) *Gate {
	return &Gate{admin: admin}
}

// Admin returns the admin identity.
func (g *Gate) Admin() Identity {
	return g.admin
}

// Authorize returns true iff caller is the admin.
func (g *Gate) Authorize(caller Identity) bool {
	return caller == g.admin
}

// Check is Authorize expressed as an error.
func (g *Gate) Check(caller Identity) error {
	if !g.Authorize(caller) {
		return errors.Wrapf(ErrUnauthorized, "caller %s", caller)
	}
	return nil
}
