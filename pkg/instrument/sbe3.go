package instrument

// SBE3 lines are exactly 58 characters; the two channel counts are tokens
// 4 and 6.
var sbe3Descriptor = &Descriptor{
	Kind:      SBE3,
	Signature: "SBE3",
	Window:    4,
	Rule:      Rule{Length: 58},
	extract:   extractSBE3,
	plausible: sbe3Plausible,
}

// Open count ranges a working thermometer channel can report.
const (
	SBE3Counts0Min = 500000
	SBE3Counts0Max = 815000
	SBE3Counts1Min = 450000
	SBE3Counts1Max = 770000
)

func extractSBE3(fields []string, h Header) (Record, error) {
	tok0, err := token(fields, 4, "counts_0")
	if err != nil {
		return nil, err
	}
	tok1, err := token(fields, 6, "counts_1")
	if err != nil {
		return nil, err
	}

	c0, err := parseInt("counts_0", tok0)
	if err != nil {
		return nil, err
	}
	c1, err := parseInt("counts_1", tok1)
	if err != nil {
		return nil, err
	}

	return SBE3Record{Header: h, Counts0: c0, Counts1: c1}, nil
}

func sbe3Plausible(r Record) bool {
	rec := r.(SBE3Record)
	return rec.Counts0 > SBE3Counts0Min && rec.Counts0 < SBE3Counts0Max &&
		rec.Counts1 > SBE3Counts1Min && rec.Counts1 < SBE3Counts1Max
}
