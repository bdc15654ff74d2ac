package datamap

import (
	"errors"
	"fmt"
)

// Structural faults. These indicate a programming error in the caller; the
// operation that hit one is aborted without mutating the graph.
var (
	ErrUnknownVertex   = errors.New("datamap: unknown vertex")
	ErrUnknownEdge     = errors.New("datamap: unknown edge")
	ErrEdgesNotAllowed = errors.New("datamap: vertex does not allow emanating edges")
	ErrDuplicateEdge   = errors.New("datamap: edge already exists")
	ErrDuplicateSerial = errors.New("datamap: serialization id already in use")
	ErrNotEnumeration  = errors.New("datamap: vertex is not an enumeration")
	ErrEmptyAttribute  = errors.New("datamap: empty attribute name")
)

// DecodeError reports a malformed serialized datamap. Line is 1-based.
type DecodeError struct {
	Line int
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("datamap: line %d: %s: %v", e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("datamap: line %d: %s", e.Line, e.Msg)
}

func (e *DecodeError) Unwrap() error { return e.Err }
