package classify

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ChangeType labels the outcome of a sentiment comparison.
type ChangeType string

const (
	Spike  ChangeType = "spike"
	Drop   ChangeType = "drop"
	Normal ChangeType = "normal"
)

// Glyph returns the direction marker used in alert messages.
func (c ChangeType) Glyph() string {
	if c == Drop {
		return "📉"
	}
	return "📈"
}

// Profile is a named parameter set governing classification sensitivity.
type Profile struct {
	Name      string
	Threshold decimal.Decimal
	HighBand  decimal.Decimal
	LowBand   decimal.Decimal
}

var (
	// Production is the scheduled-pipeline parameterisation.
	Production = Profile{
		Name:      "production",
		Threshold: decimal.RequireFromString("0.10"),
		HighBand:  decimal.NewFromInt(70),
		LowBand:   decimal.NewFromInt(30),
	}

	// Manual is the presentation/manual-check parameterisation.
	Manual = Profile{
		Name:      "manual",
		Threshold: decimal.RequireFromString("0.20"),
		HighBand:  decimal.NewFromInt(80),
		LowBand:   decimal.NewFromInt(20),
	}
)

// First-sighting bands are fixed regardless of profile.
var (
	firstSightHigh = decimal.NewFromInt(80)
	firstSightLow  = decimal.NewFromInt(20)
)

// ProfileByName resolves a profile by its configured name.
func ProfileByName(name string) (Profile, error) {
	switch name {
	case "", Production.Name:
		return Production, nil
	case Manual.Name:
		return Manual, nil
	default:
		return Profile{}, fmt.Errorf("unknown classification profile %q", name)
	}
}

// Classify compares the current sentiment against the most recent prior
// value. A nil previous means the symbol has never been observed: extreme
// current values alert on first sighting. A previous of exactly zero makes
// the relative change undefined and is treated as no significant change.
func Classify(current decimal.Decimal, previous *decimal.Decimal, p Profile) ChangeType {
	if previous == nil {
		switch {
		case current.GreaterThanOrEqual(firstSightHigh):
			return Spike
		case current.LessThanOrEqual(firstSightLow):
			return Drop
		default:
			return Normal
		}
	}

	if previous.IsZero() {
		return Normal
	}

	delta := current.Sub(*previous)
	pct := delta.Abs().Div(*previous)

	if pct.GreaterThan(p.Threshold) {
		if delta.Sign() > 0 && current.GreaterThanOrEqual(p.HighBand) {
			return Spike
		}
		if delta.Sign() < 0 && current.LessThanOrEqual(p.LowBand) {
			return Drop
		}
	}

	return Normal
}

// Message renders the human-readable explanation for a spike or drop.
func Message(symbol string, current decimal.Decimal, previous *decimal.Decimal, change ChangeType) string {
	glyph := change.Glyph()

	if previous == nil || previous.IsZero() {
		quality := "high"
		if change == Drop {
			quality = "low"
		}
		return fmt.Sprintf("%s %s has %s sentiment at %s/100 (first analysis)",
			glyph, symbol, quality, current.String())
	}

	delta := current.Sub(*previous)
	pct := delta.Div(*previous).Mul(decimal.NewFromInt(100))

	return fmt.Sprintf("%s %s sentiment %s! Now at %s/100 (%s from %s, %s%%)",
		glyph, symbol, change, current.String(),
		signedFixed(delta, 1), previous.String(), signedFixed(pct, 1))
}

func signedFixed(d decimal.Decimal, places int32) string {
	if d.Sign() > 0 {
		return "+" + d.StringFixed(places)
	}
	return d.StringFixed(places)
}
