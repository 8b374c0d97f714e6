package formula

import (
	"fmt"
	"math"
	"strings"

	"github.com/de-tools/kpi-delta/pkg/models/domain"
)

func nan() float64 { return math.NaN() }

// AmbiguousDefinitionError reports a derived metric whose name collides
// with a raw metric or another definition.
type AmbiguousDefinitionError struct {
	Name string
}

func (e *AmbiguousDefinitionError) Error() string {
	return fmt.Sprintf("derived metric %q shadows an existing metric name", e.Name)
}

// CyclicDefinitionError reports a definition that references itself,
// directly or through a chain of other definitions.
type CyclicDefinitionError struct {
	Cycle []string
}

func (e *CyclicDefinitionError) Error() string {
	return fmt.Sprintf("cyclic derived metric definition: %s", strings.Join(e.Cycle, " -> "))
}

type compiled struct {
	def  domain.MetricDefinition
	root node
	refs map[string]struct{}
}

// Evaluate computes every derived metric over the raw averages.
// Definitions may reference earlier or later definitions; the
// dependency graph is cycle-checked before any evaluation. Raw nulls
// arrive as NaN and propagate. The result holds only the derived
// values, keyed by definition name.
func Evaluate(raw map[string]float64, defs []domain.MetricDefinition) (map[string]float64, error) {
	if len(defs) == 0 {
		return map[string]float64{}, nil
	}

	byName := make(map[string]*compiled, len(defs))
	ordered := make([]*compiled, 0, len(defs))
	for _, def := range defs {
		if _, exists := raw[def.Name]; exists {
			return nil, &AmbiguousDefinitionError{Name: def.Name}
		}
		if _, dup := byName[def.Name]; dup {
			return nil, &AmbiguousDefinitionError{Name: def.Name}
		}
		root, err := parse(def.Expression)
		if err != nil {
			return nil, fmt.Errorf("definition %q: %w", def.Name, err)
		}
		refs := make(map[string]struct{})
		root.refs(refs)
		c := &compiled{def: def, root: root, refs: refs}
		byName[def.Name] = c
		ordered = append(ordered, c)
	}

	if err := checkCycles(ordered, byName); err != nil {
		return nil, err
	}

	derived := make(map[string]float64, len(defs))
	var resolve func(name string) (float64, error)
	resolve = func(name string) (float64, error) {
		if v, ok := derived[name]; ok {
			return v, nil
		}
		if v, ok := raw[name]; ok {
			return v, nil
		}
		c, ok := byName[name]
		if !ok {
			return 0, &UndefinedMetricReferenceError{Name: name}
		}
		v, err := c.root.eval(resolve)
		if err != nil {
			return 0, err
		}
		derived[name] = v
		return v, nil
	}

	for _, c := range ordered {
		if _, err := resolve(c.def.Name); err != nil {
			return nil, fmt.Errorf("definition %q: %w", c.def.Name, err)
		}
	}
	return derived, nil
}

// Check parses every definition and verifies the dependency graph is
// acyclic, without evaluating anything. It lets callers reject bad
// input before any I/O happens. Raw metric names are unknown at this
// point, so reference resolution is deferred to Evaluate.
func Check(defs []domain.MetricDefinition) error {
	byName := make(map[string]*compiled, len(defs))
	ordered := make([]*compiled, 0, len(defs))
	for _, def := range defs {
		if _, dup := byName[def.Name]; dup {
			return &AmbiguousDefinitionError{Name: def.Name}
		}
		root, err := parse(def.Expression)
		if err != nil {
			return fmt.Errorf("definition %q: %w", def.Name, err)
		}
		refs := make(map[string]struct{})
		root.refs(refs)
		c := &compiled{def: def, root: root, refs: refs}
		byName[def.Name] = c
		ordered = append(ordered, c)
	}
	return checkCycles(ordered, byName)
}

// checkCycles rejects self- and transitive references among definitions
// with a three-color depth-first walk. Raw metric references are leaves
// and never part of a cycle.
func checkCycles(ordered []*compiled, byName map[string]*compiled) error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(byName))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		c, ok := byName[name]
		if !ok {
			return nil
		}
		switch color[name] {
		case gray:
			start := 0
			for i, p := range path {
				if p == name {
					start = i
					break
				}
			}
			return &CyclicDefinitionError{Cycle: append(path[start:], name)}
		case black:
			return nil
		}
		color[name] = gray
		for ref := range c.refs {
			if err := visit(ref, append(path, name)); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}

	for _, c := range ordered {
		if err := visit(c.def.Name, nil); err != nil {
			return err
		}
	}
	return nil
}
