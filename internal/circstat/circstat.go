// Package circstat computes circular means and converts between day of year
// and angle on the unit circle.
package circstat

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ErrWeightsShape is returned when weights and angles differ in length.
var ErrWeightsShape = errors.New("weights and data have inconsistent shape")

// Mean returns the circular mean of angles in radians, in [-π, π].
// NaN entries are ignored; an empty or all-NaN input yields 0.
func Mean(angles []float64) float64 {
	m, _ := WeightedMean(angles, nil)
	return m
}

// WeightedMean is Mean with per-angle weights. A nil weights slice weighs
// every angle equally. Entries where the angle or the weight is NaN are ignored.
func WeightedMean(angles, weights []float64) (float64, error) {
	if weights != nil && len(weights) != len(angles) {
		return 0, fmt.Errorf("%w: %d angles, %d weights", ErrWeightsShape, len(angles), len(weights))
	}
	x := make([]float64, 0, len(angles))
	var w []float64
	if weights != nil {
		w = make([]float64, 0, len(weights))
	}
	for i, a := range angles {
		if math.IsNaN(a) || (weights != nil && math.IsNaN(weights[i])) {
			continue
		}
		x = append(x, a)
		if weights != nil {
			w = append(w, weights[i])
		}
	}
	if len(x) == 0 {
		return 0, nil
	}
	return stat.CircularMean(x, w), nil
}

// MeanAlong returns the circular mean of each series.
func MeanAlong(series [][]float64) []float64 {
	out := make([]float64, len(series))
	for i, s := range series {
		out[i] = Mean(s)
	}
	return out
}

// DaysInYear returns 366 for leap years and 365 otherwise.
func DaysInYear(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

// DayOfYearToAngle maps doy in [1, ndays] onto [-π, π].
func DayOfYearToAngle(doy, ndays float64) float64 {
	a := doy * 2 * math.Pi / ndays
	if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// daySnap is how close a converted day must be to a whole day to be
// returned as that day.
const daySnap = 1e-9

// AngleToDayOfYear is the inverse of DayOfYearToAngle: whole days map back
// exactly. Results below 1, including angle 0, map to ndays so the output
// stays in [1, ndays].
func AngleToDayOfYear(angle, ndays float64) float64 {
	if angle < 0 {
		angle += 2 * math.Pi
	}
	doy := angle * ndays / (2 * math.Pi)
	if r := math.Round(doy); math.Abs(doy-r) < daySnap {
		doy = r
	}
	if doy < 1 {
		return ndays
	}
	return doy
}

// YearSeries holds one value per year. When Years is empty the day count of
// each element falls back to max(365, value).
type YearSeries struct {
	Years  []int
	Values []float64
}

func (s YearSeries) ndays(i int) (float64, error) {
	if len(s.Years) == 0 {
		return math.Max(365, s.Values[i]), nil
	}
	if len(s.Years) != len(s.Values) {
		return 0, fmt.Errorf("%w: %d years, %d values", ErrWeightsShape, len(s.Years), len(s.Values))
	}
	return float64(DaysInYear(s.Years[i])), nil
}

// ToAngles converts day-of-year values to angles. NaN stays NaN.
func (s YearSeries) ToAngles() ([]float64, error) {
	return s.convert(DayOfYearToAngle)
}

// ToDaysOfYear converts angle values back to days of year. NaN stays NaN.
func (s YearSeries) ToDaysOfYear() ([]float64, error) {
	return s.convert(AngleToDayOfYear)
}

func (s YearSeries) convert(fn func(float64, float64) float64) ([]float64, error) {
	out := make([]float64, len(s.Values))
	for i, v := range s.Values {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		n, err := s.ndays(i)
		if err != nil {
			return nil, err
		}
		out[i] = fn(v, n)
	}
	return out, nil
}
