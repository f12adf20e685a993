package alerting

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Result captures one threshold evaluation.
type Result struct {
	// HasBaseline is false for the first observation of an identifier;
	// such results never trigger and carry an empty delta.
	HasBaseline bool
	Triggered   bool
	Change      decimal.Decimal
	ChangePct   decimal.Decimal
	Direction   string
}

// Evaluate compares the current price against the previous one.
//
// The alert fires when |change%| >= threshold. A zero raw difference is
// classified "flat" and never fires, so a zero threshold means every
// nonzero change alerts. A non-positive previous price is no usable
// baseline; dividing by it would panic.
func Evaluate(previous *decimal.Decimal, current decimal.Decimal, thresholdPct decimal.Decimal) Result {
	if previous == nil || previous.Sign() <= 0 {
		return Result{}
	}

	change := current.Sub(*previous)
	changePct := change.Div(*previous).Mul(hundred)

	res := Result{
		HasBaseline: true,
		Change:      change,
		ChangePct:   changePct,
		Direction:   classifyChange(change),
	}
	res.Triggered = !change.IsZero() && changePct.Abs().GreaterThanOrEqual(thresholdPct)
	return res
}

func classifyChange(d decimal.Decimal) string {
	switch d.Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}

// DeltaDescription renders the signed delta, e.g. "+5.00%". Empty without a
// baseline.
func (r Result) DeltaDescription() string {
	if !r.HasBaseline {
		return ""
	}
	pct := r.ChangePct.StringFixed(2)
	if r.ChangePct.Sign() >= 0 {
		pct = "+" + pct
	}
	return fmt.Sprintf("%s%%", pct)
}
