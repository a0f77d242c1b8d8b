// Package calib converts raw sensor readings into physical units using
// per-instrument calibration coefficients.
package calib

import (
	"errors"
	"fmt"
	"math"
)

// ErrDomain is returned when an input lies outside the domain of a transfer
// function or the result is not finite.
var ErrDomain = errors.New("outside calibration domain")

// CrystalFrequency is the SBE3 reference crystal frequency in MHz.
const CrystalFrequency = 4.91548

// SBE3Coefficients are the ITS-90 coefficients of one SBE3 thermometer.
type SBE3Coefficients struct {
	G  float64 `yaml:"g"`
	H  float64 `yaml:"h"`
	I  float64 `yaml:"i"`
	J  float64 `yaml:"j"`
	F0 float64 `yaml:"f0"`
}

// Frequency converts an SBE3 period count to a frequency in Hz.
func Frequency(counts int64) (float64, error) {
	if counts <= 0 {
		return 0, fmt.Errorf("%w: counts %d must be positive", ErrDomain, counts)
	}
	return 512 * CrystalFrequency / (float64(counts) / 1e6), nil
}

// ITS90 returns the temperature in degrees Celsius for a thermometer
// frequency f in Hz.
func ITS90(f float64, c SBE3Coefficients) (float64, error) {
	if c.F0 <= 0 {
		return 0, fmt.Errorf("%w: f0 %g must be positive", ErrDomain, c.F0)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%w: frequency %g must be positive", ErrDomain, f)
	}

	l := math.Log(c.F0 / f)
	t := 1/(c.G+c.H*l+c.I*l*l+c.J*l*l*l) - 273.15
	return finite("temperature", t)
}

// ConvertSBE3 converts a raw count to degrees Celsius.
func ConvertSBE3(counts int64, c SBE3Coefficients) (float64, error) {
	f, err := Frequency(counts)
	if err != nil {
		return 0, err
	}
	return ITS90(f, c)
}

// ParosCoefficients are the calibration coefficients of a Paroscientific
// quartz pressure transducer.
type ParosCoefficients struct {
	C1 float64 `yaml:"c1"`
	C2 float64 `yaml:"c2"`
	C3 float64 `yaml:"c3"`
	D1 float64 `yaml:"d1"`
	D2 float64 `yaml:"d2"`
	T1 float64 `yaml:"t1"`
	T2 float64 `yaml:"t2"`
	T3 float64 `yaml:"t3"`
	T4 float64 `yaml:"t4"`
	T5 float64 `yaml:"t5"`
	U0 float64 `yaml:"u0"`
	Y1 float64 `yaml:"y1"`
	Y2 float64 `yaml:"y2"`
	Y3 float64 `yaml:"y3"`
}

// ConvertParos returns temperature and pressure from the temperature
// period eta and pressure period tau, both in microseconds.
func ConvertParos(eta, tau float64, c ParosCoefficients) (temperature, pressure float64, err error) {
	if tau == 0 {
		return 0, 0, fmt.Errorf("%w: pressure period tau is zero", ErrDomain)
	}

	u := eta - c.U0
	cc := c.C1 + c.C2*u + c.C3*u*u
	d := c.D1 + c.D2*u
	t0 := c.T1 + c.T2*u + c.T3*u*u + c.T4*u*u*u + c.T5*u*u*u*u

	temperature, err = finite("temperature", c.Y1*u+c.Y2*u*u+c.Y3*u*u*u)
	if err != nil {
		return 0, 0, err
	}

	r := 1 - t0*t0/(tau*tau)
	pressure, err = finite("pressure", cc*r*(1-d*r))
	if err != nil {
		return 0, 0, err
	}
	return temperature, pressure, nil
}

func finite(what string, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s is %g", ErrDomain, what, v)
	}
	return v, nil
}
