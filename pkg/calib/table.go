package calib

import (
	"fmt"

	"github.com/oceanlab/flowmow/pkg/table"
)

// Converted column names.
const (
	ColParosTemperature = "temperature"
	ColParosPressure    = "pressure"
	ColSBE3Temperature0 = "temperature_0"
	ColSBE3Temperature1 = "temperature_1"
)

// ApplyParos adds temperature and pressure columns to a paros table.
func ApplyParos(t *table.Table, c ParosCoefficients) error {
	etas, err := t.Float64s("eta")
	if err != nil {
		return err
	}
	taus, err := t.Float64s("tau")
	if err != nil {
		return err
	}

	temps := make([]float64, len(etas))
	press := make([]float64, len(etas))
	for i := range etas {
		temps[i], press[i], err = ConvertParos(etas[i], taus[i], c)
		if err != nil {
			return fmt.Errorf("paros row %d: %w", i, err)
		}
	}

	if err := t.AddFloat64Column(ColParosTemperature, temps); err != nil {
		return err
	}
	return t.AddFloat64Column(ColParosPressure, press)
}

// ApplySBE3 adds a temperature column for each thermometer channel of an
// sbe3 table. Both channels are converted before either column is added.
func ApplySBE3(t *table.Table, ch0, ch1 SBE3Coefficients) error {
	channels := []struct {
		counts string
		out    string
		coef   SBE3Coefficients
	}{
		{"counts_0", ColSBE3Temperature0, ch0},
		{"counts_1", ColSBE3Temperature1, ch1},
	}

	converted := make([][]float64, len(channels))
	for c, ch := range channels {
		counts, ok := t.Column(ch.counts)
		if !ok {
			return fmt.Errorf("table %s has no column %q", t.Name, ch.counts)
		}

		temps := make([]float64, len(counts))
		for i, v := range counts {
			n, ok := v.(int64)
			if !ok {
				return fmt.Errorf("%s row %d: %T is not an integer count", ch.counts, i, v)
			}
			temp, err := ConvertSBE3(n, ch.coef)
			if err != nil {
				return fmt.Errorf("%s row %d: %w", ch.counts, i, err)
			}
			temps[i] = temp
		}
		converted[c] = temps
	}

	for c, ch := range channels {
		if err := t.AddFloat64Column(ch.out, converted[c]); err != nil {
			return err
		}
	}
	return nil
}
