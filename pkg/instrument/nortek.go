package instrument

// Nortek velocity lines ("VVD") have 21 fields. Velocities, beam correlations
// and amplitudes sit in tokens 8-10, 12-14 and 16-18.
var nortekDescriptor = &Descriptor{
	Kind:      Nortek,
	Signature: "VVD",
	Window:    4,
	Rule:      Rule{FieldCount: 21},
	extract:   extractNortek,
}

func extractNortek(fields []string, h Header) (Record, error) {
	names := payloadColumns[Nortek]
	rec := NortekRecord{Header: h}

	groups := []struct {
		start int
		dst   *[3]float64
	}{
		{8, &rec.Velocity},
		{12, &rec.Correlation},
		{16, &rec.Amplitude},
	}

	for g, grp := range groups {
		vals, err := parseFloats(names[g*3:g*3+3], fields[grp.start:grp.start+3])
		if err != nil {
			return nil, err
		}
		copy(grp.dst[:], vals)
	}

	return rec, nil
}
