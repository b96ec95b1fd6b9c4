package environment

import (
	"errors"
	"math"
	"testing"

	"gotest.tools/v3/assert"
)

func TestFactorsFor(t *testing.T) {
	assert.Equal(t, FactorsFor(Clear), Factors{1.0, 1.0, 1.0})
	assert.Equal(t, FactorsFor(Cloudy), Factors{0.4, 0.8, 1.0})
	assert.Equal(t, FactorsFor(Stormy), Factors{0.1, 1.8, 1.2})
	assert.Equal(t, FactorsFor("FOG"), FactorsFor(Clear))
}

func TestParseWeather(t *testing.T) {
	w, err := ParseWeather(" stormy ")
	assert.NilError(t, err)
	assert.Equal(t, w, Stormy)

	_, err = ParseWeather("hail")
	assert.Assert(t, errors.Is(err, ErrUnknownWeather))
}

func TestSolarCurveNight(t *testing.T) {
	for d := 0; d <= 24; d++ {
		assert.Equal(t, SolarCurve(d), 0.0, "daily tick %d", d)
	}
	for d := 72; d < TicksPerDay; d++ {
		assert.Assert(t, SolarCurve(d) < 1e-9, "daily tick %d", d)
	}
}

func TestSolarCurveNoon(t *testing.T) {
	assert.Assert(t, math.Abs(SolarCurve(48)-1) < 1e-9)
	assert.Assert(t, SolarCurve(36) > 0.7 && SolarCurve(36) < 0.71)
}

func TestDemandCurve(t *testing.T) {
	assert.Assert(t, math.Abs(DemandCurve(0)-0.7) < 1e-9)
	assert.Assert(t, math.Abs(DemandCurve(48)-0.3) < 1e-9)
	for d := 0; d < TicksPerDay; d++ {
		assert.Assert(t, DemandCurve(d) > 0, "daily tick %d", d)
	}
}

func TestDailyTick(t *testing.T) {
	assert.Equal(t, DailyTick(95), 95)
	assert.Equal(t, DailyTick(96), 0)
	assert.Equal(t, DailyTick(200), 8)
}

func TestSimTime(t *testing.T) {
	assert.Equal(t, SimTime(0), "Day 1 00:00")
	assert.Equal(t, SimTime(25), "Day 1 06:15")
	assert.Equal(t, SimTime(96), "Day 2 00:00")
}

func TestImpact(t *testing.T) {
	assert.Assert(t, Stormy.Impact() != Clear.Impact())
	assert.Assert(t, Cloudy.Impact() != Clear.Impact())
}
