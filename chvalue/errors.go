package chvalue

import "fmt"

// ValueErrorKind classifies a ValueError.
type ValueErrorKind int

const (
	// WrongKind is returned by an As* accessor when the value's Kind does
	// not match the accessor's target type.
	WrongKind ValueErrorKind = iota
	// Overflow is returned when narrowing a wide integer or decimal loses
	// magnitude.
	Overflow
	// NullAccess is returned by an As* accessor invoked on a null value.
	NullAccess
	// IndexOutOfRange is returned by staging-buffer index accessors when the
	// 1-based public index falls outside the schema's column count.
	IndexOutOfRange
)

// ValueError reports a failed conversion or access on a Value.
type ValueError struct {
	Kind    ValueErrorKind
	Message string
}

func (e *ValueError) Error() string {
	return "chvalue: " + e.Message
}

func (e *ValueError) Is(target error) bool {
	_, ok := target.(*ValueError)
	return ok
}

func wrongKind(want string, v Value) error {
	return &ValueError{Kind: WrongKind, Message: fmt.Sprintf("value is %s, not %s", v.Kind, want)}
}
