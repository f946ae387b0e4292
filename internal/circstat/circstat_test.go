package circstat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysInYear(t *testing.T) {
	assert.Equal(t, 365, DaysInYear(2019))
	assert.Equal(t, 366, DaysInYear(2020))
	assert.Equal(t, 365, DaysInYear(1900))
	assert.Equal(t, 366, DaysInYear(2000))
}

func TestDayOfYearRoundTrip(t *testing.T) {
	for _, ndays := range []float64{365, 366} {
		for doy := 1.0; doy <= ndays; doy++ {
			a := DayOfYearToAngle(doy, ndays)
			assert.GreaterOrEqual(t, a, -math.Pi)
			assert.LessOrEqual(t, a, math.Pi)
			assert.Equal(t, doy, AngleToDayOfYear(a, ndays), "ndays=%g doy=%g", ndays, doy)
		}
	}
}

func TestAngleToDayOfYear_ZeroIsLastDay(t *testing.T) {
	assert.Equal(t, 366.0, AngleToDayOfYear(0, 366))
	assert.Equal(t, 365.0, AngleToDayOfYear(0, 365))
}

func TestMean(t *testing.T) {
	tests := []struct {
		name   string
		angles []float64
		want   float64
	}{
		{"single", []float64{1}, 1},
		{"wraps around pi", []float64{math.Pi - 0.1, -math.Pi + 0.1}, math.Pi},
		{"ignores NaN", []float64{0.5, math.NaN(), 0.5}, 0.5},
		{"empty", nil, 0},
		{"all NaN", []float64{math.NaN()}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, math.Abs(Mean(tt.angles)), 1e-9)
		})
	}
}

func TestMean_EvenlySpacedIsFinite(t *testing.T) {
	m := Mean([]float64{0, 2 * math.Pi / 3, 4 * math.Pi / 3})
	assert.False(t, math.IsNaN(m))
	assert.False(t, math.IsInf(m, 0))
	assert.LessOrEqual(t, math.Abs(m), math.Pi)
}

func TestWeightedMean(t *testing.T) {
	m, err := WeightedMean([]float64{0, math.Pi / 2}, []float64{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0, m, 1e-12)

	_, err = WeightedMean([]float64{0, 1}, []float64{1})
	assert.ErrorIs(t, err, ErrWeightsShape)
}

func TestMeanAlong(t *testing.T) {
	got := MeanAlong([][]float64{{0.25, 0.25}, {-1}})
	require.Len(t, got, 2)
	assert.InDelta(t, 0.25, got[0], 1e-12)
	assert.InDelta(t, -1, got[1], 1e-12)
}

func TestYearSeries(t *testing.T) {
	s := YearSeries{Years: []int{2019, 2020}, Values: []float64{365, 366}}
	angles, err := s.ToAngles()
	require.NoError(t, err)
	assert.InDelta(t, 0, angles[0], 1e-12)
	assert.InDelta(t, 0, angles[1], 1e-12)

	back, err := YearSeries{Years: s.Years, Values: angles}.ToDaysOfYear()
	require.NoError(t, err)
	assert.Equal(t, []float64{365, 366}, back)

	_, err = YearSeries{Years: []int{2019}, Values: []float64{1, 2}}.ToAngles()
	assert.ErrorIs(t, err, ErrWeightsShape)
}

func TestAngleToDayOfYear_KeepsFractionalDays(t *testing.T) {
	half := DayOfYearToAngle(100.5, 365)
	assert.InDelta(t, 100.5, AngleToDayOfYear(half, 365), 1e-12)
}

func TestYearSeries_FractionalFallbackDayCount(t *testing.T) {
	// Without years the day count is max(365, value) and is not truncated.
	got, err := YearSeries{Values: []float64{365.5}}.ToAngles()
	require.NoError(t, err)
	assert.InDelta(t, DayOfYearToAngle(365.5, 365.5), got[0], 1e-15)
	assert.InDelta(t, 0, got[0], 1e-12)

	truncated := DayOfYearToAngle(365.5, 365)
	assert.NotEqual(t, truncated, got[0])
}

func TestYearSeries_NoYearsAndNaN(t *testing.T) {
	got, err := YearSeries{Values: []float64{math.NaN(), 366}}.ToAngles()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got[0]))
	assert.InDelta(t, 0, got[1], 1e-12)
}
