package datamap

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a vertex.
type Kind int

const (
	KindIdentifier Kind = iota
	KindEnumeration
	KindInteger
	KindFloat
	KindString
	KindForeign
)

func (k Kind) String() string {
	switch k {
	case KindIdentifier:
		return "identifier"
	case KindEnumeration:
		return "enumeration"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindForeign:
		return "foreign"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is the closed set of vertex payloads. The set is sealed: only the
// types in this file implement it, so a type switch over Identifier,
// Enumeration, IntegerRange, FloatRange, String and Foreign is exhaustive.
type Value interface {
	Kind() Kind
	// Accepts reports whether a literal token is a legal value for this vertex.
	Accepts(literal string) bool
	clone() Value
	sealed()
}

// Identifier is an attribute-chain anchor. It has no intrinsic value and is
// the only payload that may carry emanating edges.
type Identifier struct{}

func (Identifier) Kind() Kind { return KindIdentifier }
func (Identifier) Accepts(string) bool { return false }
func (Identifier) clone() Value { return Identifier{} }
func (Identifier) sealed() {}

// Enumeration holds an insertion-ordered set of unique symbolic values.
// It may grow but never shrinks.
type Enumeration struct {
	Values []string
}

// NewEnumeration builds an enumeration, dropping duplicate values while
// keeping first-seen order.
func NewEnumeration(values ...string) Enumeration {
	e := Enumeration{Values: make([]string, 0, len(values))}
	for _, v := range values {
		if !e.Contains(v) {
			e.Values = append(e.Values, v)
		}
	}
	return e
}

func (Enumeration) Kind() Kind { return KindEnumeration }

func (e Enumeration) Accepts(literal string) bool { return e.Contains(literal) }

// Contains reports whether value is a member of the enumeration.
func (e Enumeration) Contains(value string) bool {
	return slices.Contains(e.Values, value)
}

func (e Enumeration) clone() Value {
	return Enumeration{Values: slices.Clone(e.Values)}
}

func (Enumeration) sealed() {}

// IntegerRange is an inclusive integer bound. The zero-argument constructor
// yields the full int64 range, which is treated as unbounded.
type IntegerRange struct {
	Low  int64
	High int64
}

// UnboundedInteger returns the full-range integer vertex payload.
func UnboundedInteger() IntegerRange {
	return IntegerRange{Low: math.MinInt64, High: math.MaxInt64}
}

func (IntegerRange) Kind() Kind { return KindInteger }

// Unbounded reports whether the range spans every representable integer.
func (r IntegerRange) Unbounded() bool {
	return r.Low == math.MinInt64 && r.High == math.MaxInt64
}

func (r IntegerRange) Accepts(literal string) bool {
	n, err := strconv.ParseInt(literal, 10, 64)
	if err != nil {
		return false
	}
	return n >= r.Low && n <= r.High
}

func (r IntegerRange) clone() Value { return r }
func (IntegerRange) sealed() {}

// FloatRange is an inclusive float bound; infinities mean unbounded.
type FloatRange struct {
	Low  float64
	High float64
}

// UnboundedFloat returns the full-range float vertex payload.
func UnboundedFloat() FloatRange {
	return FloatRange{Low: math.Inf(-1), High: math.Inf(1)}
}

func (FloatRange) Kind() Kind { return KindFloat }

// Unbounded reports whether both ends of the range are infinite.
func (r FloatRange) Unbounded() bool {
	return math.IsInf(r.Low, -1) && math.IsInf(r.High, 1)
}

func (r FloatRange) Accepts(literal string) bool {
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil || math.IsNaN(f) {
		return false
	}
	return f >= r.Low && f <= r.High
}

func (r FloatRange) clone() Value { return r }
func (FloatRange) sealed() {}

// String is an unconstrained textual value. It is terminal.
type String struct{}

func (String) Kind() Kind { return KindString }
func (String) Accepts(string) bool { return true }
func (String) clone() Value { return String{} }
func (String) sealed() {}

// Foreign wraps a vertex imported from another datamap document. Traversal
// and value checks behave like the wrapped payload.
type Foreign struct {
	Document string
	SerialID string
	Wrapped  Value
}

// NewForeign wraps value, flattening nested foreign wrappers so that Wrapped
// is never itself a Foreign.
func NewForeign(document, serialID string, value Value) Foreign {
	if f, ok := value.(Foreign); ok {
		value = f.Wrapped
	}
	return Foreign{Document: document, SerialID: serialID, Wrapped: value}
}

func (Foreign) Kind() Kind { return KindForeign }

func (f Foreign) Accepts(literal string) bool {
	if f.Wrapped == nil {
		return false
	}
	return f.Wrapped.Accepts(literal)
}

func (f Foreign) clone() Value {
	out := Foreign{Document: f.Document, SerialID: f.SerialID}
	if f.Wrapped != nil {
		out.Wrapped = f.Wrapped.clone()
	}
	return out
}

func (Foreign) sealed() {}

// Effective unwraps foreign payloads.
func Effective(v Value) Value {
	if f, ok := v.(Foreign); ok {
		return f.Wrapped
	}
	return v
}

// EffectiveKind is the kind a vertex behaves as during traversal.
func EffectiveKind(v Value) Kind {
	e := Effective(v)
	if e == nil {
		return KindForeign
	}
	return e.Kind()
}

// Describe renders a payload for diagnostics, e.g. "enumeration{a, b}".
func Describe(v Value) string {
	switch t := v.(type) {
	case Identifier:
		return "identifier"
	case Enumeration:
		return "enumeration{" + strings.Join(t.Values, ", ") + "}"
	case IntegerRange:
		if t.Unbounded() {
			return "integer"
		}
		return fmt.Sprintf("integer[%d, %d]", t.Low, t.High)
	case FloatRange:
		if t.Unbounded() {
			return "float"
		}
		return fmt.Sprintf("float[%g, %g]", t.Low, t.High)
	case String:
		return "string"
	case Foreign:
		return fmt.Sprintf("foreign(%s:%s) %s", t.Document, t.SerialID, Describe(t.Wrapped))
	default:
		return "unknown"
	}
}
