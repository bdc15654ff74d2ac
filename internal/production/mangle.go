package production

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/parse"
)

// Premise predicates understood by LoadMangle.
const (
	predState = "state" // state(S)
	predWME   = "wme"   // wme(Id, Attr, Value), condition side
	predMake  = "make"  // make(Id, Attr, Value), action side
)

// LoadMangle reads productions written as Mangle clauses, one production per
// clause:
//
//	propose_move(S) :- state(S), wme(S, "operator", O), make(O, "name", "move").
//
// The head predicate names the production. Mangle variables become rule
// variables; string and name constants become symbolic literals; numbers
// become numeric literals. Each `_` is a fresh variable.
func LoadMangle(r io.Reader, file string) ([]Production, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	var out []Production
	for _, stmt := range splitStatements(string(src)) {
		unit, err := parse.Unit(strings.NewReader(stmt.text))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", file, stmt.line, err)
		}
		for _, clause := range unit.Clauses {
			p, err := clauseToProduction(clause, file, stmt.line)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", file, stmt.line, err)
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func clauseToProduction(clause ast.Clause, file string, line int) (Production, error) {
	p := Production{Name: clause.Head.Predicate.Symbol, File: file, Line: line}
	fresh := 0
	ref := func(term ast.BaseTerm) (Ref, error) {
		switch t := term.(type) {
		case ast.Variable:
			if t.Symbol == "_" {
				fresh++
				return Var("_" + strconv.Itoa(fresh)), nil
			}
			return Var(t.Symbol), nil
		case ast.Constant:
			return constantRef(t)
		default:
			return Ref{}, fmt.Errorf("unsupported term %v", term)
		}
	}

	for _, premise := range clause.Premises {
		atom, ok := premise.(ast.Atom)
		if !ok {
			return Production{}, fmt.Errorf("production %s: unsupported premise %v", p.Name, premise)
		}
		sym := atom.Predicate.Symbol
		switch {
		case sym == predState && len(atom.Args) == 1:
			id, err := ref(atom.Args[0])
			if err != nil {
				return Production{}, err
			}
			if !id.Var {
				return Production{}, fmt.Errorf("production %s: state/1 needs a variable", p.Name)
			}
			p.Triples = append(p.Triples, Triple{Variable: id.Name, HasState: true, Condition: true, Line: line})
		case (sym == predWME || sym == predMake) && len(atom.Args) == 3:
			refs := make([]Ref, 3)
			for i, arg := range atom.Args {
				r, err := ref(arg)
				if err != nil {
					return Production{}, fmt.Errorf("production %s: %w", p.Name, err)
				}
				refs[i] = r
			}
			if !refs[0].Var {
				return Production{}, fmt.Errorf("production %s: %s/3 identifier must be a variable", p.Name, sym)
			}
			p.Triples = append(p.Triples, Triple{
				Variable:  refs[0].Name,
				Attr:      refs[1],
				Value:     refs[2],
				Condition: sym == predWME,
				Line:      line,
			})
		default:
			return Production{}, fmt.Errorf("production %s: unsupported premise %s/%d", p.Name, sym, len(atom.Args))
		}
	}
	if err := p.Validate(); err != nil {
		return Production{}, err
	}
	return p, nil
}

func constantRef(c ast.Constant) (Ref, error) {
	switch c.Type {
	case ast.StringType:
		return Lit(strings.Trim(c.Symbol, `"`)), nil
	case ast.NameType:
		return Lit(strings.TrimPrefix(c.Symbol, "/")), nil
	case ast.NumberType:
		return Lit(strconv.FormatInt(c.NumValue, 10)), nil
	case ast.Float64Type:
		f, err := c.Float64Value()
		if err != nil {
			return Ref{}, err
		}
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return Lit(s), nil
	default:
		return Ref{}, fmt.Errorf("unsupported constant %v", c)
	}
}

type statement struct {
	text string
	line int
}

// splitStatements cuts Mangle source into clauses so each can be attributed
// to the line it starts on. A clause ends at a '.' outside strings and
// comments that is not followed by a digit.
func splitStatements(src string) []statement {
	var out []statement
	var b strings.Builder
	line, start := 1, 0
	inString, inComment := false, false
	var quote byte

	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '\n' {
			inComment = false
		}
		switch {
		case inComment:
		case inString:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				b.WriteByte(src[i])
			} else if c == quote {
				inString = false
			}
		case c == '#':
			inComment = true
		case c == '"' || c == '\'':
			inString, quote = true, c
			b.WriteByte(c)
			if start == 0 {
				start = line
			}
		case c == '.' && (i+1 >= len(src) || src[i+1] < '0' || src[i+1] > '9'):
			b.WriteByte(c)
			out = append(out, statement{text: b.String(), line: start})
			b.Reset()
			start = 0
		default:
			if start == 0 && c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				start = line
			}
			if start != 0 || c == '\n' {
				b.WriteByte(c)
			}
		}
		if c == '\n' {
			line++
		}
	}
	if strings.TrimSpace(b.String()) != "" {
		out = append(out, statement{text: b.String(), line: start})
	}
	return out
}
