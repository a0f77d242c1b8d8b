package instrument

import (
	"errors"
	"strings"
)

// Paros lines look like
//
//	RAW 2019/07/01 12:00:00.123456 P2=28.123456,5.812345,...
//
// and are exactly 57 characters when complete.
var parosDescriptor = &Descriptor{
	Kind:      Paros,
	Signature: "RAW",
	Window:    3,
	Rule:      Rule{Contains: "P2=", Length: 57},
	extract:   extractParos,
}

func extractParos(fields []string, h Header) (Record, error) {
	tok, err := token(fields, 3, "P2")
	if err != nil {
		return nil, err
	}

	parts := strings.Split(tok, ",")
	if len(parts) < 2 {
		return nil, &fieldError{field: "eta", err: errors.New("missing comma-separated period")}
	}
	kv := strings.Split(parts[0], "=")
	if len(kv) < 2 {
		return nil, &fieldError{field: "tau", err: errors.New("missing '='")}
	}

	tau, err := parseFloat("tau", kv[1])
	if err != nil {
		return nil, err
	}
	eta, err := parseFloat("eta", parts[1])
	if err != nil {
		return nil, err
	}

	return ParosRecord{Header: h, Tau: tau, Eta: eta}, nil
}
