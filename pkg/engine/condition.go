package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// evaluateCondition decides the branch of an if_condition node. The config
// names the input to inspect (dot paths descend into nested maps), a
// comparison operator and a literal to compare against.
func evaluateCondition(config, inputs map[string]any) (bool, error) {
	key, _ := config["input"].(string)
	if key == "" {
		key = "value"
	}

	operator, _ := config["operator"].(string)
	if operator == "" {
		operator = "eq"
	}

	expected := config["value"]
	actual, present := lookupValue(inputs, key)

	switch operator {
	case "exists":
		return present, nil
	case "eq":
		return equalValues(actual, expected), nil
	case "neq":
		return !equalValues(actual, expected), nil
	case "gt", "gte", "lt", "lte":
		left, leftOK := toFloat(actual)
		right, rightOK := toFloat(expected)

		if !leftOK || !rightOK {
			return false, fmt.Errorf("condition operator %q requires numeric operands", operator)
		}

		switch operator {
		case "gt":
			return left > right, nil
		case "gte":
			return left >= right, nil
		case "lt":
			return left < right, nil
		default:
			return left <= right, nil
		}
	case "contains":
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(expected)), nil
	default:
		return false, fmt.Errorf("unsupported condition operator %q", operator)
	}
}

// lookupValue resolves a dot-separated path through nested maps.
func lookupValue(inputs map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	current := any(inputs)

	for _, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
