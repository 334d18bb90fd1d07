package docstore

import (
	"fmt"
	"strings"

	"github.com/kyleking/schemasync/internal/schema"
)

// Values of different kinds sort nil < bool < number < string < anything else
func rank(v any) int {
	if v == nil {
		return 0
	}

	if _, ok := v.(bool); ok {
		return 1
	}

	if _, ok := schema.ToFloat(v); ok {
		return 2
	}

	if _, ok := v.(string); ok {
		return 3
	}

	return 4
}

// compareValues orders two field values for secondary indexes
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}

		return 1
	}

	switch ra {
	case 0:
		return 0
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		af, _ := schema.ToFloat(a)
		bf, _ := schema.ToFloat(b)

		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case 3:
		return strings.Compare(a.(string), b.(string))
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

// equalValues is compareValues == 0, so 1 and 1.0 match
func equalValues(a, b any) bool {
	return compareValues(a, b) == 0
}
