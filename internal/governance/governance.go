// Package governance decides who may administer an account.
package governance

import (
	"errors"
	"fmt"

	"github.com/danmuck/acctos/internal/ledger"
)

var ErrInvalidGovernance = errors.New("governance: invalid governance")

const (
	KindMonarchy = "monarchy"
	KindExternal = "external"
)

// Details is a closed variant: exactly one field is set.
type Details struct {
	Monarchy *Monarchy `json:"monarchy,omitempty"`
	External *External `json:"external,omitempty"`
}

// Monarchy gives a single address full control.
type Monarchy struct {
	Monarch ledger.Address `json:"monarch"`
}

// External delegates control to a governance contract, typically a
// multisig, which acts by sending messages itself.
type External struct {
	GovernanceAddress ledger.Address `json:"governance_address"`
}

func NewMonarchy(monarch ledger.Address) Details {
	return Details{Monarchy: &Monarchy{Monarch: monarch}}
}

func NewExternal(addr ledger.Address) Details {
	return Details{External: &External{GovernanceAddress: addr}}
}

func (d Details) Validate() error {
	switch {
	case d.Monarchy != nil && d.External != nil:
		return fmt.Errorf("%w: more than one model set", ErrInvalidGovernance)
	case d.Monarchy != nil:
		if d.Monarchy.Monarch.IsZero() {
			return fmt.Errorf("%w: monarch address is required", ErrInvalidGovernance)
		}
	case d.External != nil:
		if d.External.GovernanceAddress.IsZero() {
			return fmt.Errorf("%w: governance address is required", ErrInvalidGovernance)
		}
	default:
		return fmt.Errorf("%w: no model set", ErrInvalidGovernance)
	}
	return nil
}

func (d Details) Kind() string {
	switch {
	case d.Monarchy != nil:
		return KindMonarchy
	case d.External != nil:
		return KindExternal
	default:
		return ""
	}
}

// Owner is the single address whose messages the model accepts.
func (d Details) Owner() ledger.Address {
	switch {
	case d.Monarchy != nil:
		return d.Monarchy.Monarch
	case d.External != nil:
		return d.External.GovernanceAddress
	default:
		return ""
	}
}

// Authorized reports whether sender may administer the account.
func (d Details) Authorized(sender ledger.Address) bool {
	owner := d.Owner()
	return !owner.IsZero() && owner == sender
}
