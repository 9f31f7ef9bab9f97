package sensor

import (
	"fmt"
	"math"
)

// Model names.
const (
	ModelAR0231  = "ar0231"
	ModelOX03C10 = "ox03c10"
	ModelOS04C10 = "os04c10"
)

// RegWrite is one device register write.
type RegWrite struct {
	Addr uint16 `json:"addr"`
	Data uint16 `json:"data"`
}

// Sensor is the capability the exposure controller consumes.
type Sensor interface {
	// Model returns the sensor model name, e.g. "ox03c10".
	Model() string

	// Calibration returns the model's constants. Callers must not modify it.
	Calibration() *Calibration

	// Score ranks a candidate setting; lower is better. curGainIdx is the
	// currently applied gain index.
	Score(desiredEV float64, expTime, gainIdx int, effGain float64, curGainIdx int) float64

	// Registers renders a setting into the writes that apply it.
	Registers(expTime, gainIdx int, dcGain bool) []RegWrite
}

// Calibration holds per-model constants.
type Calibration struct {
	PixelSizeMM float64 `yaml:"pixel_size_mm"`

	// DataWord selects 16-bit register data on the bus.
	DataWord bool `yaml:"data_word"`

	ExposureTimeMin int `yaml:"exposure_time_min"`
	ExposureTimeMax int `yaml:"exposure_time_max"`

	// Gains is the analog gain table, indexed by gain index.
	Gains      []float64 `yaml:"analog_gains"`
	GainMinIdx int       `yaml:"analog_gain_min_idx"`
	GainRecIdx int       `yaml:"analog_gain_rec_idx"`
	GainMaxIdx int       `yaml:"analog_gain_max_idx"`

	GainCostDelta float64 `yaml:"analog_gain_cost_delta"`
	GainCostLow   float64 `yaml:"analog_gain_cost_low"`
	GainCostHigh  float64 `yaml:"analog_gain_cost_high"`

	DCGainFactor    float64 `yaml:"dc_gain_factor"`
	DCGainMinWeight int     `yaml:"dc_gain_min_weight"`
	DCGainMaxWeight int     `yaml:"dc_gain_max_weight"`
	DCGainOnGrey    float64 `yaml:"dc_gain_on_grey"`
	DCGainOffGrey   float64 `yaml:"dc_gain_off_grey"`

	TargetGreyFactor float64 `yaml:"target_grey_factor"`

	// MinEV and MaxEV are derived from the tables when left at zero.
	MinEV float64 `yaml:"min_ev"`
	MaxEV float64 `yaml:"max_ev"`

	// VSTimeMin and VSTimeMax bound the very-short exposure of split-pixel HDR sensors.
	VSTimeMin int `yaml:"vs_time_min"`
	VSTimeMax int `yaml:"vs_time_max"`
}

// finalize validates the table and fills derived EV bounds.
func (c *Calibration) finalize(model string) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidCalibration, model, fmt.Sprintf(format, args...))
	}

	if c.PixelSizeMM <= 0 {
		return fail("pixel_size_mm must be positive")
	}
	if c.ExposureTimeMin <= 0 || c.ExposureTimeMax < c.ExposureTimeMin {
		return fail("exposure time bounds [%d, %d] are invalid", c.ExposureTimeMin, c.ExposureTimeMax)
	}
	if c.GainMinIdx < 0 || c.GainMinIdx > c.GainRecIdx || c.GainRecIdx > c.GainMaxIdx || c.GainMaxIdx >= len(c.Gains) {
		return fail("gain indices %d/%d/%d do not fit a table of %d", c.GainMinIdx, c.GainRecIdx, c.GainMaxIdx, len(c.Gains))
	}
	for i := 1; i < len(c.Gains); i++ {
		if c.Gains[i] < c.Gains[i-1] {
			return fail("analog_gains must not decrease (index %d)", i)
		}
	}
	if c.DCGainMaxWeight <= 0 || c.DCGainMinWeight < 0 || c.DCGainMinWeight > c.DCGainMaxWeight {
		return fail("dc gain weights [%d, %d] are invalid", c.DCGainMinWeight, c.DCGainMaxWeight)
	}
	if c.DCGainFactor < 1 {
		return fail("dc_gain_factor must be at least 1")
	}

	if c.MinEV == 0 {
		c.MinEV = float64(c.ExposureTimeMin) * c.Gains[c.GainMinIdx]
	}
	if c.MaxEV == 0 {
		c.MaxEV = float64(c.ExposureTimeMax) * c.DCGainFactor * c.Gains[c.GainMaxIdx]
	}
	if c.MaxEV <= c.MinEV {
		return fail("max_ev %.3f must exceed min_ev %.3f", c.MaxEV, c.MinEV)
	}
	return nil
}

// Blend returns the conversion-gain multiplier for a weight: 1 at weight 0,
// DCGainFactor at DCGainMaxWeight.
func (c *Calibration) Blend(weight int) float64 {
	return 1 + float64(weight)*(c.DCGainFactor-1)/float64(c.DCGainMaxWeight)
}

// ClampTime bounds an exposure time to the sensor's range.
func (c *Calibration) ClampTime(t int) int {
	return min(max(t, c.ExposureTimeMin), c.ExposureTimeMax)
}

// ClampGainIdx bounds a gain index to [GainMinIdx, GainMaxIdx].
func (c *Calibration) ClampGainIdx(idx int) int {
	return min(max(idx, c.GainMinIdx), c.GainMaxIdx)
}

// ClampWeight bounds a conversion-gain weight.
func (c *Calibration) ClampWeight(w int) int {
	return min(max(w, c.DCGainMinWeight), c.DCGainMaxWeight)
}

// EVPercent maps an exposure value linearly onto [0, 100] between MinEV and MaxEV.
func (c *Calibration) EVPercent(ev float64) float64 {
	ev = math.Min(math.Max(ev, c.MinEV), c.MaxEV)
	return (ev - c.MinEV) / (c.MaxEV - c.MinEV) * 100
}

// gainCost weighs distance from the recommended index, steeper above it.
func (c *Calibration) gainCost(gainIdx int) float64 {
	m := c.GainCostLow
	if gainIdx > c.GainRecIdx {
		m = c.GainCostHigh
	}
	return math.Abs(float64(gainIdx-c.GainRecIdx)) * m
}

func hi(v int) uint16 { return uint16(v>>8) & 0xFF }
func lo(v int) uint16 { return uint16(v) & 0xFF }
