package hostcap

import (
	"context"
	"math"
	"testing"
)

func invokeMultiply(t *testing.T, c *Compute, a, b any) (any, *Error) {
	t.Helper()
	ops := c.Ops()
	if len(ops) != 1 || ops[0].Name != "multiply" {
		t.Fatalf("unexpected ops: %+v", ops)
	}
	return ops[0].Func(context.Background(), map[string]any{"a": a, "b": b})
}

func TestMultiply(t *testing.T) {
	c := NewCompute(DefaultComputeConfig())

	v, err := invokeMultiply(t, c, 2.0, 3.0)
	if err != nil {
		t.Fatalf("multiply failed: %v", err)
	}
	if v != 6.0 {
		t.Errorf("expected 6.0, got %v", v)
	}
}

func TestMultiplyStrictValidation(t *testing.T) {
	c := NewCompute(DefaultComputeConfig())

	tests := []struct {
		name string
		a, b any
		kind Kind
	}{
		{"nan operand", math.NaN(), 1.0, InvalidOperand},
		{"inf operand", math.Inf(1), 1.0, InvalidOperand},
		{"missing operand", nil, 1.0, InvalidOperand},
		{"non-numeric operand", "2", 3.0, InvalidOperand},
		{"infinite product", math.MaxFloat64, math.MaxFloat64, Overflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{"b": tt.b}
			if tt.a != nil {
				args["a"] = tt.a
			}
			_, err := c.Ops()[0].Func(context.Background(), args)
			if err == nil || err.Kind != tt.kind {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestMultiplyMagnitudeBound(t *testing.T) {
	c := NewCompute(ComputeConfig{MaxMagnitude: 100})

	if _, err := invokeMultiply(t, c, 10.0, 10.0); err != nil {
		t.Errorf("product at the bound should pass, got %v", err)
	}

	_, err := invokeMultiply(t, c, 10.0, 11.0)
	if err == nil || err.Kind != Overflow {
		t.Errorf("expected Overflow above the bound, got %v", err)
	}
}

func TestMultiplyIEEEPassthrough(t *testing.T) {
	c := NewCompute(ComputeConfig{IEEE: true})

	v, err := invokeMultiply(t, c, math.NaN(), 1.0)
	if err != nil {
		t.Fatalf("IEEE mode should pass NaN through, got %v", err)
	}
	if f, ok := v.(float64); !ok || !math.IsNaN(f) {
		t.Errorf("expected NaN result, got %v", v)
	}

	v, err = invokeMultiply(t, c, math.MaxFloat64, 2.0)
	if err != nil {
		t.Fatalf("IEEE mode should pass infinity through, got %v", err)
	}
	if f, ok := v.(float64); !ok || !math.IsInf(f, 1) {
		t.Errorf("expected +Inf result, got %v", v)
	}
}
