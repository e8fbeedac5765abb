package hostcap

import (
	"context"
	"math"
)

// ComputeConfig configures the arithmetic capability.
type ComputeConfig struct {
	// IEEE passes NaN and infinity through untouched instead of failing.
	// Off by default: strict validation is the boundary's contract unless the
	// host explicitly opts out.
	IEEE bool

	// MaxMagnitude bounds the absolute value of results. Zero means only
	// infinity overflows.
	MaxMagnitude float64
}

// DefaultComputeConfig returns strict validation with no magnitude bound.
func DefaultComputeConfig() ComputeConfig {
	return ComputeConfig{}
}

// Compute delegates arithmetic to the host, applying the host's precision
// and overflow policy instead of silently producing NaN or infinity.
type Compute struct {
	cfg ComputeConfig
}

// NewCompute creates the arithmetic capability.
func NewCompute(cfg ComputeConfig) *Compute {
	return &Compute{cfg: cfg}
}

// Name implements Capability.
func (c *Compute) Name() string { return "compute" }

// Ops implements Capability.
func (c *Compute) Ops() []Op {
	return []Op{
		{Name: "multiply", Requires: CategoryCompute, Func: c.multiply},
	}
}

func (c *Compute) multiply(ctx context.Context, args map[string]any) (any, *Error) {
	const op = "compute.multiply"

	a, err := floatArg(op, args, "a")
	if err != nil {
		return nil, err
	}
	b, err := floatArg(op, args, "b")
	if err != nil {
		return nil, err
	}

	if !c.cfg.IEEE {
		if math.IsNaN(a) || math.IsNaN(b) {
			return nil, Errf(InvalidOperand, op, "operand is NaN")
		}
		if math.IsInf(a, 0) || math.IsInf(b, 0) {
			return nil, Errf(InvalidOperand, op, "operand is infinite")
		}
	}

	product := a * b

	if !c.cfg.IEEE {
		if math.IsInf(product, 0) {
			return nil, Errf(Overflow, op, "product is infinite")
		}
		if c.cfg.MaxMagnitude > 0 && math.Abs(product) > c.cfg.MaxMagnitude {
			return nil, Errf(Overflow, op, "product exceeds bound %g", c.cfg.MaxMagnitude)
		}
	}

	return product, nil
}
