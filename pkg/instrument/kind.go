// Package instrument recognizes the record formats written by the vehicle's
// sensors and extracts their payloads into typed records.
//
// Every text instrument shares one scan loop (see Scan). What differs between
// instruments is captured by a Descriptor: the signature that identifies the
// instrument's lines, the structural rule a complete line satisfies, and the
// extractor that turns fixed token positions into a Record.
package instrument

import (
	"fmt"
	"strings"
)

// Kind identifies an instrument.
type Kind string

const (
	Navigation Kind = "navigation"
	Paros      Kind = "paros"
	Ustrain    Kind = "ustrain"
	SBE3       Kind = "sbe3"
	Nortek     Kind = "nortek"
)

var allKinds = []Kind{Navigation, Paros, Ustrain, SBE3, Nortek}

// Kinds returns every supported instrument.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind resolves an instrument name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown instrument %q (must be navigation, paros, ustrain, sbe3, or nortek)", s)
}

// IsText reports whether the instrument writes line-oriented text logs.
// Navigation arrives as a binary MAT-file instead.
func (k Kind) IsText() bool {
	return k != Navigation
}

func (k Kind) String() string {
	return string(k)
}
