// Package scoring turns an answer into points.
package scoring

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultBasePoints = 1000
	DefaultFloor      = 0.5
)

type Config struct {
	// BasePoints is awarded for a correct answer given instantly.
	BasePoints int
	// Floor is the fraction of BasePoints awarded for a correct answer given at the time limit.
	Floor float64
}

// Policy awards BasePoints × factor for a correct answer, where factor falls linearly from 1 at
// zero elapsed time to Floor at the time limit. Incorrect answers score 0.
// The result depends only on its arguments.
type Policy struct {
	base  decimal.Decimal
	floor decimal.Decimal
}

func NewPolicy(c Config) *Policy {
	if c.BasePoints <= 0 {
		c.BasePoints = DefaultBasePoints
	}
	if c.Floor <= 0 || c.Floor > 1 {
		c.Floor = DefaultFloor
	}

	return &Policy{
		base:  decimal.NewFromInt(int64(c.BasePoints)),
		floor: decimal.NewFromFloat(c.Floor),
	}
}

// Points returns the points for an answer given elapsed seconds into a round of the given limit.
func (p *Policy) Points(correct bool, elapsed float64, limit time.Duration) int {
	if !correct {
		return 0
	}

	return int(p.base.Mul(p.Factor(elapsed, limit)).Round(0).IntPart())
}

// Factor returns the time factor in [Floor, 1]. A non-positive limit yields 1.
func (p *Policy) Factor(elapsed float64, limit time.Duration) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if limit <= 0 || elapsed <= 0 {
		return one
	}

	ratio := decimal.NewFromFloat(elapsed).Div(decimal.NewFromFloat(limit.Seconds()))
	if ratio.GreaterThan(one) {
		ratio = one
	}

	return one.Sub(one.Sub(p.floor).Mul(ratio))
}
