package permit

import (
	"fmt"

	"github.com/updatectl/updatectl/pkg/log"
)

// Result classifies an authorization decision.
type Result string

const (
	Granted Result = "granted"
	Denied  Result = "denied"
	// Pending means the provider cannot decide yet (human in the loop); the
	// caller must wait and ask again rather than fail.
	Pending Result = "pending"
)

// Decision is the outcome of one Provider.Evaluate call.
type Decision struct {
	Result Result
	// Reason carries the denial reason when Result is Denied.
	Reason string
}

func GrantedDecision() Decision {
	return Decision{Result: Granted}
}

func DeniedDecision(reason string) Decision {
	return Decision{Result: Denied, Reason: reason}
}

func PendingDecision() Decision {
	return Decision{Result: Pending}
}

// Provider is supplied by the embedding application and answers whether the
// device may proceed with a deployment phase. Evaluate may be called any
// number of times; a Pending answer is re-asked on the next poll signal.
type Provider interface {
	Evaluate() Decision
}

// Gate wraps a caller-supplied provider so that a misbehaving provider can
// never take down the session: a panic inside Evaluate is returned as an
// error instead.
type Gate struct {
	name     string
	provider Provider
	log      *log.PrefixLogger
}

func NewGate(name string, provider Provider, log *log.PrefixLogger) *Gate {
	return &Gate{
		name:     name,
		provider: provider,
		log:      log,
	}
}

func (g *Gate) Name() string {
	return g.name
}

func (g *Gate) Evaluate() (decision Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s permit provider panicked: %v", g.name, r)
		}
	}()

	decision = g.provider.Evaluate()
	g.log.Debugf("Permit %q evaluated: %s", g.name, decision.Result)
	return decision, nil
}

// AlwaysGranted is a Provider that grants every request. It is the default
// when the embedding application supplies no provider for a gate.
type AlwaysGranted struct{}

func (AlwaysGranted) Evaluate() Decision {
	return GrantedDecision()
}
