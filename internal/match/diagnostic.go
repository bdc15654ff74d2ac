// Package match checks productions against a datamap and repairs the datamap
// so that it absorbs structure the productions reference.
package match

import (
	"errors"
	"fmt"
	"strings"

	"datamap/internal/datamap"
	"datamap/internal/production"
)

// Kind classifies a Diagnostic.
type Kind int

const (
	NoStateVariable Kind = iota
	TooManyStateVariables
	BadConstraint
	VariableNotMatched
	GeneratedIdentifier
	GeneratedInteger
	GeneratedFloat
	GeneratedEnumeration
	AddToEnumeration
)

func (k Kind) String() string {
	switch k {
	case NoStateVariable:
		return "NoStateVariable"
	case TooManyStateVariables:
		return "TooManyStateVariables"
	case BadConstraint:
		return "BadConstraint"
	case VariableNotMatched:
		return "VariableNotMatched"
	case GeneratedIdentifier:
		return "GeneratedIdentifier"
	case GeneratedInteger:
		return "GeneratedInteger"
	case GeneratedFloat:
		return "GeneratedFloat"
	case GeneratedEnumeration:
		return "GeneratedEnumeration"
	case AddToEnumeration:
		return "AddToEnumeration"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Generated reports whether the kind records synthesized structure.
func (k Kind) Generated() bool { return k >= GeneratedIdentifier }

// Diagnostic is one schema-consistency finding. It carries enough context to
// render a message without consulting the graph.
type Diagnostic struct {
	Kind       Kind
	Production string
	File       string
	Line       int

	// Triple is set for BadConstraint and the generated kinds.
	Triple *production.Triple
	// Variables holds the variable named by VariableNotMatched, or the
	// offending state variables.
	Variables []string
	// Attr and Value describe synthesized structure.
	Attr  string
	Value string
	// Edge is the synthesized or extended edge.
	Edge datamap.EdgeKey
}

// Message renders the finding without its location.
func (d Diagnostic) Message() string {
	switch d.Kind {
	case NoStateVariable:
		return "no state variable"
	case TooManyStateVariables:
		return "too many state variables: " + strings.Join(d.Variables, ", ")
	case BadConstraint:
		return fmt.Sprintf("%s does not match the datamap", tripleText(d.Triple))
	case VariableNotMatched:
		return fmt.Sprintf("variable <%s> is not matched by the datamap", strings.Join(d.Variables, ", "))
	case GeneratedIdentifier:
		return fmt.Sprintf("added identifier ^%s", d.Attr)
	case GeneratedInteger:
		return fmt.Sprintf("added integer ^%s", d.Attr)
	case GeneratedFloat:
		return fmt.Sprintf("added float ^%s", d.Attr)
	case GeneratedEnumeration:
		return fmt.Sprintf("added enumeration ^%s with value %s", d.Attr, d.Value)
	case AddToEnumeration:
		return fmt.Sprintf("added value %s to enumeration ^%s", d.Value, d.Attr)
	default:
		return d.Kind.String()
	}
}

func (d Diagnostic) String() string {
	var loc string
	switch {
	case d.File != "" && d.Line > 0:
		loc = fmt.Sprintf("%s:%d: ", d.File, d.Line)
	case d.File != "":
		loc = d.File + ": "
	case d.Line > 0:
		loc = fmt.Sprintf("line %d: ", d.Line)
	}
	if d.Production != "" {
		return fmt.Sprintf("%s%s: %s", loc, d.Production, d.Message())
	}
	return loc + d.Message()
}

func tripleText(t *production.Triple) string {
	if t == nil {
		return "triple"
	}
	return fmt.Sprintf("(<%s> ^%s %s)", t.Variable, t.Attr, t.Value)
}

// Count returns how many diagnostics have kind k.
func Count(diags []Diagnostic, k Kind) int {
	n := 0
	for _, d := range diags {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// annotate stamps production context onto diagnostics that lack it.
func annotate(diags []Diagnostic, p production.Production) {
	for i := range diags {
		diags[i].Production = p.Name
		if diags[i].File == "" {
			diags[i].File = p.File
		}
		if diags[i].Line == 0 {
			diags[i].Line = p.Line
		}
	}
}

func stateDiagnostic(err error) (Diagnostic, bool) {
	var sve *StateVariableError
	if !errors.As(err, &sve) {
		return Diagnostic{}, false
	}
	if errors.Is(sve, ErrNoStateVariable) {
		return Diagnostic{Kind: NoStateVariable}, true
	}
	return Diagnostic{Kind: TooManyStateVariables, Variables: sve.Variables}, true
}
