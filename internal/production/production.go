// Package production holds the parsed-rule boundary types consumed by the
// matcher: productions, their triples, and the loaders for the interchange
// formats productions arrive in.
package production

import (
	"fmt"
	"strconv"
	"strings"
)

// Ref is a position in a triple: either a variable or a literal token.
type Ref struct {
	Name string
	Var  bool
}

// Var builds a variable reference.
func Var(name string) Ref { return Ref{Name: name, Var: true} }

// Lit builds a literal reference.
func Lit(token string) Ref { return Ref{Name: token} }

// ParseRef reads the textual form: `<x>` is a variable, anything else a literal.
func ParseRef(s string) Ref {
	if len(s) > 2 && strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		return Var(s[1 : len(s)-1])
	}
	return Lit(s)
}

func (r Ref) String() string {
	if r.Var {
		return "<" + r.Name + ">"
	}
	return r.Name
}

// IsZero reports an unset position.
func (r Ref) IsZero() bool { return r.Name == "" && !r.Var }

// LexClass is the lexical class of a literal token.
type LexClass int

const (
	Symbolic LexClass = iota
	Integer
	Float
)

func (c LexClass) String() string {
	switch c {
	case Integer:
		return "integer"
	case Float:
		return "float"
	default:
		return "symbolic"
	}
}

// Classify returns the lexical class of a literal. Only plain decimal
// notation counts as numeric, so tokens like "inf" or "nan" stay symbolic.
func Classify(token string) LexClass {
	if token == "" {
		return Symbolic
	}
	if _, err := strconv.ParseInt(token, 10, 64); err == nil {
		return Integer
	}
	digits := false
	for _, r := range token {
		switch {
		case r >= '0' && r <= '9':
			digits = true
		case r == '.' || r == '+' || r == '-' || r == 'e' || r == 'E':
		default:
			return Symbolic
		}
	}
	if !digits {
		return Symbolic
	}
	if _, err := strconv.ParseFloat(token, 64); err == nil {
		return Float
	}
	return Symbolic
}

// Triple is one (identifier, attribute, value) fact extracted from a rule
// clause.
type Triple struct {
	// Variable is the identifier-position variable name.
	Variable string
	Attr     Ref
	Value    Ref
	// HasState marks the triple designating the rule's state variable.
	// Designator triples carry no attribute constraint.
	HasState bool
	// Condition is true for left-hand-side triples, false for actions.
	Condition bool
	Line      int
}

func (t Triple) String() string {
	side := "action"
	if t.Condition {
		side = "condition"
	}
	if t.HasState {
		return fmt.Sprintf("(state <%s>) line %d", t.Variable, t.Line)
	}
	return fmt.Sprintf("(<%s> ^%s %s) %s line %d", t.Variable, t.Attr, t.Value, side, t.Line)
}

// Production is a named rule and its triple stream.
type Production struct {
	Name    string
	File    string
	Line    int
	Triples []Triple
}

// Variables lists identifier- and value-position variables in order of first
// appearance. Attribute-position variables are never bound to vertices and
// are left out.
func (p Production) Variables() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, t := range p.Triples {
		add(t.Variable)
		if t.Value.Var {
			add(t.Value.Name)
		}
	}
	return out
}

// Validate rejects structurally malformed productions.
func (p Production) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("production at line %d has no name", p.Line)
	}
	for i, t := range p.Triples {
		if t.Variable == "" {
			return fmt.Errorf("production %s: triple %d has no identifier variable", p.Name, i)
		}
		if t.HasState {
			if !t.Attr.IsZero() || !t.Value.IsZero() {
				return fmt.Errorf("production %s: state triple %d cannot carry an attribute or value", p.Name, i)
			}
			continue
		}
		if t.Attr.IsZero() || t.Value.IsZero() {
			return fmt.Errorf("production %s: triple %d needs an attribute and a value", p.Name, i)
		}
	}
	return nil
}
