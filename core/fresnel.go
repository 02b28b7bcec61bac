package core

import (
	"fmt"
	"math"
)

// SpeedOfLight is the propagation speed used for wavelength calculations (m/s).
const SpeedOfLight = 3e8

// ValidateFrequency checks that a frequency in GHz is strictly positive
// and finite.
func ValidateFrequency(frequencyGHz float64) error {
	if math.IsNaN(frequencyGHz) || math.IsInf(frequencyGHz, 0) || frequencyGHz <= 0 {
		return fmt.Errorf("%w: %v GHz", ErrInvalidFrequency, frequencyGHz)
	}
	return nil
}

// Wavelength returns the wavelength in metres for a frequency in GHz.
func Wavelength(frequencyGHz float64) (float64, error) {
	if err := ValidateFrequency(frequencyGHz); err != nil {
		return 0, err
	}
	return SpeedOfLight / (frequencyGHz * 1e9), nil
}

// FresnelRadius returns the first Fresnel zone radius in metres at the
// midpoint of a path of totalDistanceMeters.
func FresnelRadius(frequencyGHz, totalDistanceMeters float64) (float64, error) {
	half := totalDistanceMeters / 2
	return FresnelRadiusAt(frequencyGHz, half, half)
}

// FresnelRadiusAt returns the first Fresnel zone radius at a point d1
// metres from one end of the path and d2 metres from the other.
//
// A zero-length path has radius 0 by the limit of the formula.
func FresnelRadiusAt(frequencyGHz, d1, d2 float64) (float64, error) {
	lambda, err := Wavelength(frequencyGHz)
	if err != nil {
		return 0, err
	}
	for _, d := range []float64{d1, d2} {
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return 0, fmt.Errorf("%w: %v m", ErrInvalidDistance, d)
		}
	}
	total := d1 + d2
	if total == 0 {
		return 0, nil
	}
	return math.Sqrt(lambda * d1 * d2 / total), nil
}

// FreeSpacePathLossDB estimates free-space path loss in dB:
// 92.45 + 20 log10(d_km) + 20 log10(f_GHz). Paths shorter than one metre
// are evaluated at one metre.
func FreeSpacePathLossDB(frequencyGHz, distanceMeters float64) (float64, error) {
	if err := ValidateFrequency(frequencyGHz); err != nil {
		return 0, err
	}
	if math.IsNaN(distanceMeters) || math.IsInf(distanceMeters, 0) || distanceMeters < 0 {
		return 0, fmt.Errorf("%w: %v m", ErrInvalidDistance, distanceMeters)
	}
	if distanceMeters < 1 {
		distanceMeters = 1
	}
	distanceKm := distanceMeters / 1000
	return 92.45 + 20*math.Log10(distanceKm) + 20*math.Log10(frequencyGHz), nil
}
