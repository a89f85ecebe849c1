// Package upgrade implements the value gamble on an owned prize.
package upgrade

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Fi44er/giftcase/utils"
	"github.com/shopspring/decimal"
)

var ErrUnsupportedMultiplier = errors.New("unsupported upgrade multiplier")

type State int

const (
	Idle State = iota
	Attempted
	Success
	Burned
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attempted:
		return "attempted"
	case Success:
		return "success"
	case Burned:
		return "burned"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) Terminal() bool {
	return s == Success || s == Burned
}

// odds maps a multiplier to its success chance in percent.
var odds = map[string]float64{
	"1.5": 50,
	"2":   35,
	"3":   25,
	"5":   15,
	"10":  8,
	"20":  3,
}

type Multiplier struct {
	Factor  decimal.Decimal
	Percent float64
}

func (m Multiplier) String() string {
	return m.Factor.String() + "x"
}

// ParseMultiplier accepts "2", "2x", "1.50" and similar spellings of a supported multiplier.
func ParseMultiplier(raw string) (Multiplier, error) {
	s := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "x")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Multiplier{}, fmt.Errorf("%w: %q", ErrUnsupportedMultiplier, raw)
	}
	return Chance(d)
}

func Chance(factor decimal.Decimal) (Multiplier, error) {
	pct, ok := odds[factor.String()]
	if !ok {
		return Multiplier{}, fmt.Errorf("%w: %s", ErrUnsupportedMultiplier, factor)
	}
	return Multiplier{Factor: factor, Percent: pct}, nil
}

// Multipliers lists the supported multipliers, smallest first.
func Multipliers() []Multiplier {
	out := make([]Multiplier, 0, len(odds))
	for k, pct := range odds {
		out = append(out, Multiplier{Factor: decimal.RequireFromString(k), Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Factor.LessThan(out[j].Factor) })
	return out
}

type Result struct {
	State     State
	Roll      float64
	OldValue  decimal.Decimal
	NewValue  decimal.Decimal
	NewFactor decimal.Decimal
	// Delta is the change to apply to lifetime winnings before flooring at zero.
	Delta decimal.Decimal
}

// Attempt resolves one gamble. roll must be uniform in [0,100).
// On Burned, NewValue is zero and Delta is the negated prior value.
func Attempt(value, factor decimal.Decimal, m Multiplier, roll float64) Result {
	res := Result{State: Attempted, Roll: roll, OldValue: value}
	if roll < m.Percent {
		res.State = Success
		res.NewValue = utils.RoundMoney(value.Mul(m.Factor))
		res.NewFactor = factor.Mul(m.Factor).Round(4)
		res.Delta = res.NewValue.Sub(value)
		return res
	}
	res.State = Burned
	res.NewValue = decimal.Zero
	res.NewFactor = factor
	res.Delta = value.Neg()
	return res
}
