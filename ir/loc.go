package ir

import "fmt"

// Loc is a source position carried for diagnostics, such as reporting a goto
// whose label never appears.
type Loc struct {
	File   string
	Line   int
	Column int
}

// IsZero reports whether the location is unset.
func (l Loc) IsZero() bool {
	return l.File == "" && l.Line == 0 && l.Column == 0
}

func (l Loc) String() string {
	if l.IsZero() {
		return "<unknown>"
	}
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}
