package engine

import (
	"math/rand/v2"

	"github.com/hupe1980/agentstage/core"
)

// Secret role directives handed out when a session enables secret roles.
const (
	SaboteurInstruction = "You are secretly the saboteur. Subtly steer the group toward a poor decision " +
		"while appearing cooperative. Never admit your role, even if accused."
	AlertInstruction = "One of the other participants may be secretly working against the group. " +
		"Stay alert, question suspicious proposals and protect the group's interests."
)

// assignSecretRoles picks one agent uniformly at random as the saboteur. It
// is a no-op once roles were assigned.
func assignSecretRoles(sess *core.Session, pick func(n int) int) (core.Agent, bool) {
	agents := sess.Agents()
	if !sess.SecretRoles || len(agents) == 0 || sess.RolesAssigned() {
		return core.Agent{}, false
	}
	if pick == nil {
		pick = rand.IntN
	}
	i := pick(len(agents))
	if !sess.AssignSecretRoles(i, SaboteurInstruction, AlertInstruction) {
		return core.Agent{}, false
	}
	return agents[i], true
}
