package datamap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"datamap/internal/logging"
)

// Text format:
//
//	<vertex count>
//	IDENTIFIER <serial>
//	ENUMERATION <serial> <n> "v1" ... "vn"
//	INTEGER_RANGE <serial> <low> <high>
//	FLOAT_RANGE <serial> <low> <high>
//	STRING <serial>
//	FOREIGN <serial> "<document>" "<remote serial>" <wrapped type and args>
//	<edge count>
//	<source position> <attribute> <destination position>
//
// Positions are 0-based indexes into the vertex list. The first vertex is the
// root. The parallel comment stream has one line per edge, in edge order:
//
//	<1|0> "<comment>" ["<provenance file>" <provenance line>]
const (
	tagIdentifier  = "IDENTIFIER"
	tagEnumeration = "ENUMERATION"
	tagInteger     = "INTEGER_RANGE"
	tagFloat       = "FLOAT_RANGE"
	tagString      = "STRING"
	tagForeign     = "FOREIGN"
)

// emissionOrder lists vertices root first, then in slot order.
func emissionOrder(g *Graph) []*Vertex {
	order := make([]*Vertex, 0, len(g.slotOf))
	if root, ok := g.Root(); ok {
		order = append(order, g.slots[g.slotOf[root]])
	}
	for _, v := range g.slots {
		if v == nil || (g.hasRoot && v.ID == g.root) {
			continue
		}
		order = append(order, v)
	}
	return order
}

// Encode writes g in the text format. comments may be nil.
func Encode(g *Graph, w io.Writer, comments io.Writer) error {
	timer := logging.StartTimer(logging.CategoryCodec, "encode")
	defer timer.Stop()

	order := emissionOrder(g)
	pos := make(map[VertexID]int, len(order))
	for i, v := range order {
		pos[v.ID] = i
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(order))
	for _, v := range order {
		fmt.Fprintf(bw, "%s\n", encodeVertex(v))
	}

	var edges []*Edge
	for _, v := range order {
		for _, key := range g.out[v.ID] {
			edges = append(edges, g.edges[key])
		}
	}
	fmt.Fprintf(bw, "%d\n", len(edges))
	for _, e := range edges {
		fmt.Fprintf(bw, "%d %s %d\n", pos[e.From], quoteIfNeeded(e.Attr), pos[e.To])
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("encode datamap: %w", err)
	}

	if comments == nil {
		return nil
	}
	cw := bufio.NewWriter(comments)
	for _, e := range edges {
		flag := 0
		if e.Generated {
			flag = 1
		}
		line := fmt.Sprintf("%d %s", flag, strconv.Quote(e.Comment))
		if e.Generated && e.Provenance != nil {
			line += fmt.Sprintf(" %s %d", strconv.Quote(e.Provenance.File), e.Provenance.Line)
		}
		fmt.Fprintln(cw, line)
	}
	if err := cw.Flush(); err != nil {
		return fmt.Errorf("encode comments: %w", err)
	}
	logging.CodecDebug("encoded %d vertices, %d edges", len(order), len(edges))
	return nil
}

func encodeVertex(v *Vertex) string {
	return encodeValue(v.Value, v.SerialID)
}

func encodeValue(value Value, serial string) string {
	head := func(tag string) string {
		if serial == "" {
			return tag
		}
		return tag + " " + quoteIfNeeded(serial)
	}
	switch t := value.(type) {
	case Identifier:
		return head(tagIdentifier)
	case Enumeration:
		var b strings.Builder
		b.WriteString(head(tagEnumeration))
		fmt.Fprintf(&b, " %d", len(t.Values))
		for _, s := range t.Values {
			b.WriteByte(' ')
			b.WriteString(strconv.Quote(s))
		}
		return b.String()
	case IntegerRange:
		return fmt.Sprintf("%s %d %d", head(tagInteger), t.Low, t.High)
	case FloatRange:
		return fmt.Sprintf("%s %s %s", head(tagFloat),
			strconv.FormatFloat(t.Low, 'g', -1, 64), strconv.FormatFloat(t.High, 'g', -1, 64))
	case String:
		return head(tagString)
	case Foreign:
		return fmt.Sprintf("%s %s %s %s", head(tagForeign),
			strconv.Quote(t.Document), strconv.Quote(t.SerialID), encodeValue(t.Wrapped, ""))
	default:
		return head(tagIdentifier)
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

// MarshalValue renders a vertex payload in the text-format encoding, e.g.
// `ENUMERATION 2 "a" "b"`.
func MarshalValue(v Value) string { return encodeValue(v, "") }

// ParseValue reads a payload written by MarshalValue.
func ParseValue(s string) (Value, error) {
	toks, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty vertex payload")
	}
	value, rest, err := decodeValue(toks[0], toks[1:])
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("trailing tokens %q", rest)
	}
	return value, nil
}

// lineReader yields non-blank lines with their 1-based line numbers.
type lineReader struct {
	sc   *bufio.Scanner
	line int
}

func newLineReader(r io.Reader) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &lineReader{sc: sc}
}

func (lr *lineReader) next() ([]string, bool, error) {
	for lr.sc.Scan() {
		lr.line++
		text := strings.TrimSpace(lr.sc.Text())
		if text == "" {
			continue
		}
		toks, err := tokenize(text)
		if err != nil {
			return nil, false, &DecodeError{Line: lr.line, Msg: "bad token", Err: err}
		}
		return toks, true, nil
	}
	if err := lr.sc.Err(); err != nil {
		return nil, false, &DecodeError{Line: lr.line, Msg: "read failed", Err: err}
	}
	return nil, false, nil
}

func (lr *lineReader) fail(format string, args ...any) error {
	return &DecodeError{Line: lr.line, Msg: fmt.Sprintf(format, args...)}
}

// tokenize splits a line on whitespace, honouring Go-quoted tokens.
func tokenize(line string) ([]string, error) {
	var toks []string
	for i := 0; i < len(line); {
		switch {
		case line[i] == ' ' || line[i] == '\t':
			i++
		case line[i] == '"':
			q, err := strconv.QuotedPrefix(line[i:])
			if err != nil {
				return nil, err
			}
			s, err := strconv.Unquote(q)
			if err != nil {
				return nil, err
			}
			toks = append(toks, s)
			i += len(q)
		default:
			j := i
			for j < len(line) && line[j] != ' ' && line[j] != '\t' {
				j++
			}
			toks = append(toks, line[i:j])
			i = j
		}
	}
	return toks, nil
}

// maxPrealloc caps slice capacity taken from count lines, which are
// untrusted until the records behind them have been read.
const maxPrealloc = 4096

// Decode reads a graph in the text format. comments may be nil. Decoding is
// atomic: on error no graph is returned.
func Decode(r io.Reader, comments io.Reader) (*Graph, error) {
	timer := logging.StartTimer(logging.CategoryCodec, "decode")
	defer timer.Stop()

	lr := newLineReader(r)
	n, err := lr.count("vertex")
	if err != nil {
		return nil, err
	}

	g := New()
	ids := make([]VertexID, 0, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		toks, ok, err := lr.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, lr.fail("expected %d vertices, got %d", n, i)
		}
		if len(toks) < 2 {
			return nil, lr.fail("vertex record needs a type and serial id")
		}
		value, rest, err := decodeValue(toks[0], toks[2:])
		if err != nil {
			return nil, &DecodeError{Line: lr.line, Msg: "bad vertex", Err: err}
		}
		if len(rest) != 0 {
			return nil, lr.fail("trailing tokens %q", rest)
		}
		v, _, err := g.AddVertexWithSerial(toks[1], value)
		if err != nil {
			return nil, &DecodeError{Line: lr.line, Msg: "bad vertex", Err: err}
		}
		ids = append(ids, v.ID)
	}
	if n > 0 {
		// A graph without an identifier in first position has no root.
		_ = g.SetRoot(ids[0])
	}

	m, err := lr.count("edge")
	if err != nil {
		return nil, err
	}
	keys := make([]EdgeKey, 0, min(m, maxPrealloc))
	for i := 0; i < m; i++ {
		toks, ok, err := lr.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, lr.fail("expected %d edges, got %d", m, i)
		}
		if len(toks) != 3 {
			return nil, lr.fail("edge record needs source, attribute and destination")
		}
		from, err1 := position(toks[0], len(ids))
		to, err2 := position(toks[2], len(ids))
		if err := errors.Join(err1, err2); err != nil {
			return nil, &DecodeError{Line: lr.line, Msg: "bad edge", Err: err}
		}
		e, _, err := g.AddEdge(ids[from], toks[1], ids[to])
		if err != nil {
			return nil, &DecodeError{Line: lr.line, Msg: "bad edge", Err: err}
		}
		keys = append(keys, e.Key())
	}
	if toks, ok, _ := lr.next(); ok {
		return nil, lr.fail("unexpected trailing record %q", toks)
	}

	if comments != nil {
		if err := decodeComments(g, keys, comments); err != nil {
			return nil, err
		}
	}
	logging.CodecDebug("decoded %d vertices, %d edges", n, m)
	return g, nil
}

func (lr *lineReader) count(what string) (int, error) {
	toks, ok, err := lr.next()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, lr.fail("missing %s count", what)
	}
	if len(toks) != 1 {
		return 0, lr.fail("%s count must be a single integer", what)
	}
	n, err := strconv.Atoi(toks[0])
	if err != nil || n < 0 {
		return 0, lr.fail("bad %s count %q", what, toks[0])
	}
	return n, nil
}

func position(tok string, n int) (int, error) {
	p, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("position %q: %w", tok, err)
	}
	if p < 0 || p >= n {
		return 0, fmt.Errorf("position %d out of range [0, %d)", p, n)
	}
	return p, nil
}

func decodeValue(tag string, args []string) (Value, []string, error) {
	switch tag {
	case tagIdentifier:
		return Identifier{}, args, nil
	case tagString:
		return String{}, args, nil
	case tagEnumeration:
		if len(args) < 1 {
			return nil, nil, fmt.Errorf("enumeration needs a value count")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 || n > len(args)-1 {
			return nil, nil, fmt.Errorf("bad enumeration count %q", args[0])
		}
		return NewEnumeration(args[1 : 1+n]...), args[1+n:], nil
	case tagInteger:
		if len(args) < 2 {
			return nil, nil, fmt.Errorf("integer range needs two bounds")
		}
		lo, err1 := strconv.ParseInt(args[0], 10, 64)
		hi, err2 := strconv.ParseInt(args[1], 10, 64)
		if err := errors.Join(err1, err2); err != nil {
			return nil, nil, err
		}
		return IntegerRange{Low: lo, High: hi}, args[2:], nil
	case tagFloat:
		if len(args) < 2 {
			return nil, nil, fmt.Errorf("float range needs two bounds")
		}
		lo, err1 := strconv.ParseFloat(args[0], 64)
		hi, err2 := strconv.ParseFloat(args[1], 64)
		if err := errors.Join(err1, err2); err != nil {
			return nil, nil, err
		}
		return FloatRange{Low: lo, High: hi}, args[2:], nil
	case tagForeign:
		if len(args) < 3 {
			return nil, nil, fmt.Errorf("foreign vertex needs document, serial and wrapped type")
		}
		wrapped, rest, err := decodeValue(args[2], args[3:])
		if err != nil {
			return nil, nil, fmt.Errorf("foreign payload: %w", err)
		}
		return NewForeign(args[0], args[1], wrapped), rest, nil
	default:
		return nil, nil, fmt.Errorf("unknown vertex type %q", tag)
	}
}

func decodeComments(g *Graph, keys []EdgeKey, r io.Reader) error {
	lr := newLineReader(r)
	for i := 0; ; i++ {
		toks, ok, err := lr.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if i >= len(keys) {
			return lr.fail("comment stream has more lines than the %d edges", len(keys))
		}
		if len(toks) != 2 && len(toks) != 4 {
			return lr.fail("comment record needs a flag and a comment")
		}
		e := g.edges[keys[i]]
		switch toks[0] {
		case "0":
		case "1":
			e.Generated = true
		default:
			return lr.fail("bad generated flag %q", toks[0])
		}
		e.Comment = toks[1]
		if len(toks) == 4 && e.Generated {
			line, err := strconv.Atoi(toks[3])
			if err != nil {
				return &DecodeError{Line: lr.line, Msg: "bad provenance line", Err: err}
			}
			e.Provenance = &Provenance{File: toks[2], Line: line}
		}
	}
}
