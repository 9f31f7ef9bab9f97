package sensor

import "math"

// omnivisionScore is shared by the OmniVision parts. The gain-change cost
// grows with gain index by GainCostDelta.
func omnivisionScore(c *Calibration, desiredEV float64, expTime, gainIdx int, effGain float64, curGainIdx int) float64 {
	score := math.Abs(desiredEV - float64(expTime)*effGain)
	score += c.gainCost(gainIdx)

	span := float64(c.GainMaxIdx - c.GainMinIdx)
	frac := 0.0
	if span > 0 {
		frac = float64(gainIdx-c.GainMinIdx) / span
	}
	score += ((1 - c.GainCostDelta) + c.GainCostDelta*frac) * math.Abs(float64(gainIdx-curGainIdx)) * 5
	return score
}

// gainRegister converts a gain to the 8.8 fixed-point register value.
func gainRegister(gain float64) int {
	return int(math.Round(gain * 256))
}

// ox03c10 is the OmniVision OX03C10 split-pixel HDR sensor.
type ox03c10 struct {
	cal *Calibration
}

func (s *ox03c10) Model() string             { return ModelOX03C10 }
func (s *ox03c10) Calibration() *Calibration { return s.cal }

func (s *ox03c10) Score(desiredEV float64, expTime, gainIdx int, effGain float64, curGainIdx int) float64 {
	return omnivisionScore(s.cal, desiredEV, expTime, gainIdx, effGain, curGainIdx)
}

// Registers drives the high and low conversion-gain exposures together,
// stretches the split-pixel exposure to at least a third of the frame and
// derives the very-short exposure from the main one.
func (s *ox03c10) Registers(expTime, gainIdx int, _ bool) []RegWrite {
	c := s.cal
	hcg := expTime
	lcg := expTime
	long := c.ExposureTimeMax + c.VSTimeMax
	spd := min(max(expTime, long/3), long)
	vs := min(max(expTime/40, c.VSTimeMin), c.VSTimeMax)
	gain := gainRegister(c.Gains[gainIdx])

	return []RegWrite{
		{Addr: 0x3501, Data: hi(hcg)}, {Addr: 0x3502, Data: lo(hcg)},
		{Addr: 0x3581, Data: hi(lcg)}, {Addr: 0x3582, Data: lo(lcg)},
		{Addr: 0x3541, Data: hi(spd)}, {Addr: 0x3542, Data: lo(spd)},
		{Addr: 0x35c2, Data: lo(vs)},
		{Addr: 0x3508, Data: hi(gain)}, {Addr: 0x3509, Data: lo(gain)},
	}
}

// os04c10 is the OmniVision OS04C10.
type os04c10 struct {
	cal *Calibration
}

func (s *os04c10) Model() string             { return ModelOS04C10 }
func (s *os04c10) Calibration() *Calibration { return s.cal }

func (s *os04c10) Score(desiredEV float64, expTime, gainIdx int, effGain float64, curGainIdx int) float64 {
	return omnivisionScore(s.cal, desiredEV, expTime, gainIdx, effGain, curGainIdx)
}

// Registers writes the long exposure and the same gain to both gain banks.
func (s *os04c10) Registers(expTime, gainIdx int, _ bool) []RegWrite {
	gain := gainRegister(s.cal.Gains[gainIdx])
	return []RegWrite{
		{Addr: 0x3501, Data: hi(expTime)}, {Addr: 0x3502, Data: lo(expTime)},
		{Addr: 0x3508, Data: hi(gain)}, {Addr: 0x3509, Data: lo(gain)},
		{Addr: 0x350c, Data: hi(gain)}, {Addr: 0x350d, Data: lo(gain)},
	}
}
