// Package insurance implements the insurance fund: the last line of
// defense between an under-collateralized liquidation and socialized loss
// via ADL.
package insurance

import "github.com/openliquid/core-engine/fixedpoint"

// Contribution records a deposit into the fund.
type Contribution struct {
	Amount fixedpoint.Size
	Ts     int64
}

// Payout records a bad-debt coverage disbursement.
type Payout struct {
	Amount fixedpoint.Size
	Ts     int64
}

// Fund holds a monotonically-reconciled balance: balance always equals the
// sum of contributions minus the sum of payouts.
type Fund struct {
	balance       fixedpoint.Size
	contributions []Contribution
	payouts       []Payout
}

func New() *Fund {
	return &Fund{}
}

// Balance returns the fund's current balance.
func (f *Fund) Balance() fixedpoint.Size {
	return f.balance
}

// Contribute credits the fund and records the contribution.
func (f *Fund) Contribute(amount fixedpoint.Size, ts int64) {
	f.balance = f.balance.AddSat(amount)
	f.contributions = append(f.contributions, Contribution{Amount: amount, Ts: ts})
}

// CanCover reports whether the fund can cover amount in full, letting a
// caller decide whether to route only the covered portion or pre-empt a
// partial cover entirely.
func (f *Fund) CanCover(amount fixedpoint.Size) bool {
	return !f.balance.LessThan(amount)
}

// CoverBadDebt pays out up to amount and returns however much was
// actually covered. If the balance can't cover it in full, it pays out
// the entire remaining balance and leaves the rest for the caller (the
// state machine) to socialize through ADL.
func (f *Fund) CoverBadDebt(amount fixedpoint.Size, ts int64) fixedpoint.Size {
	covered := amount
	if f.balance.LessThan(amount) {
		covered = f.balance
	}
	f.balance = f.balance.SubSat(covered)
	f.payouts = append(f.payouts, Payout{Amount: covered, Ts: ts})
	return covered
}

// Contributions returns the fund's full contribution history.
func (f *Fund) Contributions() []Contribution {
	out := make([]Contribution, len(f.contributions))
	copy(out, f.contributions)
	return out
}

// Payouts returns the fund's full payout history.
func (f *Fund) Payouts() []Payout {
	out := make([]Payout, len(f.payouts))
	copy(out, f.payouts)
	return out
}
