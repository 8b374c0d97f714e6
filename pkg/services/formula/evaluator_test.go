package formula

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/kpi-delta/pkg/models/domain"
)

func def(name, expr string) domain.MetricDefinition {
	return domain.MetricDefinition{Name: name, Expression: expr}
}

func TestEvaluate_Arithmetic(t *testing.T) {
	raw := map[string]float64{
		"rach_attempts":  2000,
		"rach_successes": 1956,
	}

	cases := []struct {
		name     string
		defs     []domain.MetricDefinition
		metric   string
		expected float64
	}{
		{
			name:     "ratio with scaling",
			defs:     []domain.MetricDefinition{def("rach_rate", "rach_successes / rach_attempts * 100")},
			metric:   "rach_rate",
			expected: 97.8,
		},
		{
			name:     "parentheses and unary minus",
			defs:     []domain.MetricDefinition{def("headroom", "-(rach_successes - rach_attempts)")},
			metric:   "headroom",
			expected: 44,
		},
		{
			name:     "precedence",
			defs:     []domain.MetricDefinition{def("x", "2 + 3 * 4")},
			metric:   "x",
			expected: 14,
		},
		{
			name:     "literal only",
			defs:     []domain.MetricDefinition{def("baseline", "100")},
			metric:   "baseline",
			expected: 100,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			derived, err := Evaluate(raw, tc.defs)
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, derived[tc.metric], 1e-9)
		})
	}
}

func TestEvaluate_Composition(t *testing.T) {
	raw := map[string]float64{"a": 10, "b": 4}

	t.Run("derived over derived", func(t *testing.T) {
		derived, err := Evaluate(raw, []domain.MetricDefinition{
			def("sum", "a + b"),
			def("mean", "sum / 2"),
		})
		require.NoError(t, err)
		assert.InDelta(t, 7, derived["mean"], 1e-9)
	})

	t.Run("forward reference resolves", func(t *testing.T) {
		derived, err := Evaluate(raw, []domain.MetricDefinition{
			def("mean", "sum / 2"),
			def("sum", "a + b"),
		})
		require.NoError(t, err)
		assert.InDelta(t, 7, derived["mean"], 1e-9)
	})
}

func TestEvaluate_DivisionByZeroIsNaN(t *testing.T) {
	raw := map[string]float64{"num": 5, "den": 0}

	derived, err := Evaluate(raw, []domain.MetricDefinition{def("ratio", "num / den")})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(derived["ratio"]))
}

func TestEvaluate_NaNPropagates(t *testing.T) {
	raw := map[string]float64{"missing": math.NaN(), "present": 3}

	derived, err := Evaluate(raw, []domain.MetricDefinition{def("combo", "missing + present")})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(derived["combo"]))
}

func TestEvaluate_UndefinedReference(t *testing.T) {
	_, err := Evaluate(map[string]float64{"a": 1}, []domain.MetricDefinition{def("x", "a + ghost")})
	require.Error(t, err)

	var refErr *UndefinedMetricReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "ghost", refErr.Name)
}

func TestEvaluate_UnsupportedSyntax(t *testing.T) {
	raw := map[string]float64{"a": 1}

	cases := []struct {
		name string
		expr string
	}{
		{"caret exponent", "a ^ 2"},
		{"double star exponent", "a ** 2"},
		{"function call", "sqrt(a)"},
		{"dangling operator", "a +"},
		{"unbalanced paren", "(a + 1"},
		{"empty", "   "},
		{"stray character", "a $ 2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Evaluate(raw, []domain.MetricDefinition{def("x", tc.expr)})
			require.Error(t, err)
			var uErr *UnsupportedExpressionError
			assert.ErrorAs(t, err, &uErr)
		})
	}
}

func TestEvaluate_RejectsCycles(t *testing.T) {
	raw := map[string]float64{"a": 1}

	t.Run("self reference", func(t *testing.T) {
		_, err := Evaluate(raw, []domain.MetricDefinition{def("x", "x + 1")})
		require.Error(t, err)
		var cErr *CyclicDefinitionError
		require.ErrorAs(t, err, &cErr)
		assert.Contains(t, cErr.Cycle, "x")
	})

	t.Run("transitive cycle", func(t *testing.T) {
		_, err := Evaluate(raw, []domain.MetricDefinition{
			def("x", "y + 1"),
			def("y", "z + 1"),
			def("z", "x + 1"),
		})
		require.Error(t, err)
		var cErr *CyclicDefinitionError
		assert.ErrorAs(t, err, &cErr)
	})
}

func TestEvaluate_RejectsShadowing(t *testing.T) {
	raw := map[string]float64{"rach_success": 97.8}

	t.Run("shadowing a raw metric", func(t *testing.T) {
		_, err := Evaluate(raw, []domain.MetricDefinition{def("rach_success", "1 + 1")})
		require.Error(t, err)
		var aErr *AmbiguousDefinitionError
		require.ErrorAs(t, err, &aErr)
		assert.Equal(t, "rach_success", aErr.Name)
	})

	t.Run("duplicate definition name", func(t *testing.T) {
		_, err := Evaluate(raw, []domain.MetricDefinition{
			def("x", "1"),
			def("x", "2"),
		})
		require.Error(t, err)
		var aErr *AmbiguousDefinitionError
		assert.ErrorAs(t, err, &aErr)
	})
}
