package hostcap

// Guest call arguments arrive as decoded JSON, so numbers are float64 and
// everything else needs a type assertion at the capability edge.

func floatArg(op string, args map[string]any, name string) (float64, *Error) {
	v, ok := args[name]
	if !ok {
		return 0, Errf(InvalidOperand, op, "%s required", name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, Errf(InvalidOperand, op, "%s must be a number", name)
	}
}

func stringArg(op string, args map[string]any, name string) (string, *Error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", Errf(InvalidOperand, op, "%s required", name)
	}
	return v, nil
}
