// Package policy implements the composable check engine that gates
// ceremony signing (spec §4.5): each check is a named capability
// (Context) -> []Violation, and an Engine is simply an ordered,
// independently toggleable collection of them. Every enabled check
// runs regardless of earlier failures, so the reporter always returns
// the complete violation set for one evaluation.
package policy

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kirei/ksrsigner/internal/errs"
	"github.com/kirei/ksrsigner/internal/model"
)

// Violation is one failed check, named so the orchestrator can report
// the offending document identifiers without re-deriving them.
type Violation struct {
	Check         string
	BundleID      string
	KeyIdentifier string
	Reason        string
}

func (v Violation) asError() *errs.PolicyViolation {
	return &errs.PolicyViolation{
		Check:         v.Check,
		BundleID:      v.BundleID,
		KeyIdentifier: v.KeyIdentifier,
		Reason:        v.Reason,
	}
}

// Context is everything a check may consult. Not every field is
// meaningful to every check: PreviousLastBundle is nil on a bootstrap
// ceremony (no prior SKR), and the chain checks simply pass when it is
// nil, per spec §4.4/§4.7's "previous SKR path may be absent only on
// bootstrap".
type Context struct {
	Domain  string
	Bundles []model.Bundle

	// Policy governs signature timing bounds and algorithm parameters
	// for the document under evaluation: RequestPolicy.ZSK when
	// checking a KSR, the relevant ResponsePolicy.{KSK,ZSK} field when
	// checking an SKR.
	Policy *model.SignaturePolicy

	PreviousLastBundle *model.Bundle

	Now    time.Time
	Config Config
}

// Check is one named, independently toggleable policy rule.
type Check interface {
	Name() string
	Run(ctx *Context) []Violation
}

// CheckFunc adapts a plain function into a Check.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx *Context) []Violation
}

func (c CheckFunc) Name() string                    { return c.CheckName }
func (c CheckFunc) Run(ctx *Context) []Violation { return c.Fn(ctx) }

// Engine runs an ordered set of checks and aggregates every violation
// from every enabled check into one error, so the orchestrator refuses
// to sign unless the full set is empty.
type Engine struct {
	checks []Check
}

// NewEngine builds an engine from checks, in evaluation order.
func NewEngine(checks ...Check) *Engine {
	return &Engine{checks: checks}
}

// Evaluate runs every check in order and returns a multierror.Error of
// *errs.PolicyViolation if any produced a violation, or nil if none
// did. Every check runs even after an earlier one fails.
func (e *Engine) Evaluate(ctx *Context) error {
	var result *multierror.Error
	for _, c := range e.checks {
		for _, v := range c.Run(ctx) {
			result = multierror.Append(result, v.asError())
		}
	}
	if result == nil {
		return nil
	}
	return result.ErrorOrNil()
}
