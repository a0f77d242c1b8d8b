package instrument

// Microstrain lines start with "MSA3" and carry 32 space-separated fields:
// signature, date, time, 28 strain values and a trailing checksum.
var ustrainDescriptor = &Descriptor{
	Kind:      Ustrain,
	Signature: "MSA3",
	Window:    4,
	Rule:      Rule{FieldCount: 32},
	extract:   extractUstrain,
}

func extractUstrain(fields []string, h Header) (Record, error) {
	vals, err := parseFloats(payloadColumns[Ustrain], fields[3:len(fields)-1])
	if err != nil {
		return nil, err
	}

	rec := UstrainRecord{Header: h}
	copy(rec.Strain[:], vals)
	return rec, nil
}
