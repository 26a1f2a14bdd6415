// Package auth carries the authenticated caller identity supplied by the
// host environment into the engine. The engine itself never authenticates;
// it only authorizes by comparing identities against stored authorities.
package auth

// Principal is the authenticated caller of a request.
type Principal struct {
	// ID is the caller identity, the same string stored as an authority or
	// participant key in the ledgers.
	ID string `json:"id"`
	// Roles are host-assigned roles, informational only.
	Roles []string `json:"roles,omitempty"`
}
