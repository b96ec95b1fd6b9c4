package environment

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// TicksPerDay is the number of ticks in a simulated day; each tick is 15 minutes.
const (
	TicksPerDay    = 96
	MinutesPerTick = 15
)

// ErrUnknownWeather is returned by ParseWeather for an unrecognised condition.
var ErrUnknownWeather = errors.New("unknown weather")

// Weather is the atmospheric condition applied to the whole holarchy.
type Weather string

const (
	Clear  Weather = "CLEAR"
	Cloudy Weather = "CLOUDY"
	Stormy Weather = "STORMY"
)

// ParseWeather maps a case-insensitive name to a Weather.
func ParseWeather(s string) (Weather, error) {
	switch w := Weather(strings.ToUpper(strings.TrimSpace(s))); w {
	case Clear, Cloudy, Stormy:
		return w, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWeather, s)
}

// Impact describes the effect of the condition on the energy balance.
func (w Weather) Impact() string {
	switch w {
	case Stormy:
		return "Solar yield drops to 10%, Wind surges to 180%, and demand spikes by 20%."
	case Cloudy:
		return "Solar yield limited to 40%, Wind efficiency drops by 20%."
	}
	return "Standard atmospheric coefficients applied."
}

// Factors are the multiplicative modifiers a weather condition applies.
type Factors struct {
	YieldMultiplier float64 // scales every generation curve
	WindMultiplier  float64 // extra factor for wind profiles
	DemandBase      float64 // scales the demand curve
}

// FactorsFor returns the modifiers for w. Unknown conditions behave as clear sky.
func FactorsFor(w Weather) Factors {
	switch w {
	case Cloudy:
		return Factors{YieldMultiplier: 0.4, WindMultiplier: 0.8, DemandBase: 1.0}
	case Stormy:
		return Factors{YieldMultiplier: 0.1, WindMultiplier: 1.8, DemandBase: 1.2}
	}
	return Factors{YieldMultiplier: 1.0, WindMultiplier: 1.0, DemandBase: 1.0}
}

// DailyTick is the position of tick within its simulated day.
func DailyTick(tick uint64) int {
	return int(tick % TicksPerDay)
}

// SolarCurve is the diurnal solar yield in [0,1]; zero outside daylight.
func SolarCurve(dailyTick int) float64 {
	return math.Max(0, math.Sin(float64(dailyTick-24)*(math.Pi/48)))
}

// DemandCurve is the diurnal demand factor before weather scaling.
func DemandCurve(dailyTick int) float64 {
	d := float64(dailyTick)
	return 0.5 + 0.3*math.Sin(d*(math.Pi/24)) + 0.2*math.Cos(d*(math.Pi/48))
}

// SimTime formats a tick as a simulated calendar position, e.g. "Day 2 06:15".
func SimTime(tick uint64) string {
	totalMinutes := tick * MinutesPerTick
	days := totalMinutes/(24*60) + 1
	hours := (totalMinutes % (24 * 60)) / 60
	minutes := totalMinutes % 60
	return fmt.Sprintf("Day %d %02d:%02d", days, hours, minutes)
}
