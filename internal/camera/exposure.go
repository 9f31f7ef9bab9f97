package camera

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/camerad/internal/framebuf"
	"github.com/nerrad567/camerad/internal/sensor"
)

// Control loop constants. The loop runs once per frame at a nominal 20 Hz.
const (
	controlPeriod = 0.05 // seconds
	targetGreyTau = 10.0 // seconds
	evTau         = 0.05 // seconds

	targetGreyMax   = 0.4
	targetGreyMin   = 0.1
	targetGreySlope = 0.3
	targetGreyEVRef = 6000.0
)

// smoothing returns the first-order low-pass coefficient dt/(dt+tau).
func smoothing(tau float64) float64 {
	k := controlPeriod / tau
	return k / (1 + k)
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// Exposure is the outcome of one control cycle.
type Exposure struct {
	ExposureTime       int
	GainIdx            int
	HighConversionGain bool
	DCGainWeight       int
	DesiredEV          float64
	TargetGrey         float64
	// Override is true when the debug override replaced the search.
	Override  bool
	Registers []sensor.RegWrite
}

// ComputeExposure runs one auto-exposure cycle for frameID and commits the
// new state. It does not wait or write registers; see UpdateExposure.
//
// Parameters:
//   - grey: Measured grey fraction of the frame, in [0, 1]
//   - frameID: The frame the measurement came from; selects the EV history
//     slot that was in effect when it was exposed
//
// Returns:
//   - Exposure: The committed setting and its register writes
func (c *Controller) ComputeExposure(grey float64, frameID uint64) Exposure {
	cal := c.cal
	if math.IsNaN(grey) || grey < 0 {
		grey = 0
	}

	// Only this goroutine commits exposure state, so a snapshot stays valid
	// until the commit below.
	c.expMu.Lock()
	prev := c.exp
	c.expMu.Unlock()

	slot := frameID % 3
	curEV := prev.curEV[slot]

	// Aim lower in bright scenes to keep highlights.
	newTarget := clampFloat(
		targetGreyMax-targetGreySlope*math.Log2(1+cal.TargetGreyFactor*curEV)/math.Log2(targetGreyEVRef),
		targetGreyMin, targetGreyMax)
	kg := smoothing(targetGreyTau)
	target := (1-kg)*prev.targetGrey + kg*newTarget

	// A zero grey reads as +Inf and clamps to MaxEV.
	desired := clampFloat(curEV*target/grey, cal.MinEV, cal.MaxEV)
	kev := smoothing(evTau)
	desired = (1-kev)*(prev.curEV[0]+prev.curEV[1]+prev.curEV[2])/3 + kev*desired

	enabled, weight := prev.dcGainEnabled, prev.dcGainWeight
	switch {
	case !enabled && target < cal.DCGainOnGrey:
		enabled = true
		weight = cal.DCGainMinWeight
	case enabled && target > cal.DCGainOffGrey:
		enabled = false
		weight = cal.DCGainMaxWeight
	}
	if enabled && weight < cal.DCGainMaxWeight {
		weight++
	}
	if !enabled && weight > cal.DCGainMinWeight {
		weight--
	}
	weight = cal.ClampWeight(weight)
	blend := cal.Blend(weight)

	newG, newT := prev.gainIdx, prev.exposureTime
	gainOverride, timeOverride, override := c.override()
	if override {
		newG, newT = gainOverride, timeOverride
		enabled = false
	} else {
		best := math.Inf(1)
		lo := max(cal.GainMinIdx, prev.gainIdx-1)
		hi := min(cal.GainMaxIdx, prev.gainIdx+1)
		for g := lo; g <= hi; g++ {
			gain := cal.Gains[g] * blend
			t := cal.ClampTime(int(math.Round(desired / gain)))

			// Don't trade gain for a long exposure below the recommended
			// index unless the gain is already there.
			if g < cal.GainRecIdx && t > c.lowGainGuard && g < prev.gainIdx {
				continue
			}

			score := c.sensor.Score(desired, t, g, gain, prev.gainIdx)
			if score < best {
				best = score
				newG, newT = g, t
			}
		}
	}

	c.expMu.Lock()
	c.exp.measuredGrey = grey
	c.exp.targetGrey = target
	c.exp.analogGainFrac = cal.Gains[newG]
	c.exp.gainIdx = newG
	c.exp.exposureTime = newT
	c.exp.dcGainEnabled = enabled
	c.exp.dcGainWeight = weight
	c.exp.curEV[slot] = float64(newT) * c.exp.analogGainFrac * blend
	c.expMu.Unlock()

	return Exposure{
		ExposureTime:       newT,
		GainIdx:            newG,
		HighConversionGain: enabled,
		DCGainWeight:       weight,
		DesiredEV:          desired,
		TargetGrey:         target,
		Override:           override,
		Registers:          c.sensor.Registers(newT, newG, enabled),
	}
}

// UpdateExposure computes the next setting for frame and writes it to the
// sensor no earlier than the exposure guard after the frame's start.
func (c *Controller) UpdateExposure(ctx context.Context, grey float64, frame framebuf.Metadata) error {
	if !c.enabled {
		return nil
	}

	exp := c.ComputeExposure(grey, frame.FrameID)
	c.waitExposureGuard(ctx, frame.TimestampSOF)

	if c.registers == nil || ctx.Err() != nil {
		return nil
	}
	return c.registers.WriteRegisters(ctx, c.index, OpSensorConfig, c.cal.DataWord, exp.Registers)
}

// waitExposureGuard sleeps until exposureGuard has passed since sof.
func (c *Controller) waitExposureGuard(ctx context.Context, sof uint64) {
	now := c.now()
	var elapsed time.Duration
	if now > sof {
		elapsed = time.Duration(now - sof)
	}
	if elapsed < c.exposureGuard {
		c.sleep(ctx, c.exposureGuard-elapsed)
	}
}

// override returns the debug gain index and exposure time when both keys
// are set and parse. Values are clamped to the sensor's ranges.
func (c *Controller) override() (gainIdx, expTime int, ok bool) {
	if !c.fromParams || c.overrides == nil {
		return 0, 0, false
	}
	gs := strings.TrimSpace(c.overrides.Get(KeyExposureGain))
	ts := strings.TrimSpace(c.overrides.Get(KeyExposureTime))
	if gs == "" || ts == "" {
		return 0, 0, false
	}

	g, errG := strconv.Atoi(gs)
	t, errT := strconv.Atoi(ts)
	if errG != nil || errT != nil {
		if bad := gs + "/" + ts; bad != c.lastBadOverride {
			c.lastBadOverride = bad
			c.logger.Warn("ignoring unparsable exposure override", "gain", gs, "time", ts)
		}
		return 0, 0, false
	}
	c.lastBadOverride = ""
	return c.cal.ClampGainIdx(g), c.cal.ClampTime(t), true
}
