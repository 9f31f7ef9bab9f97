package sensor

import "math"

// ar0231 is the ON Semiconductor AR0231AT.
type ar0231 struct {
	cal *Calibration
}

func (s *ar0231) Model() string             { return ModelAR0231 }
func (s *ar0231) Calibration() *Calibration { return s.cal }

// Score weighs EV error ten times harder than the OmniVision parts and
// scales the gain-change cost with the running score.
func (s *ar0231) Score(desiredEV float64, expTime, gainIdx int, effGain float64, curGainIdx int) float64 {
	score := math.Abs(desiredEV-float64(expTime)*effGain) * 10
	score += s.cal.gainCost(gainIdx)
	score += math.Abs(float64(gainIdx-curGainIdx)) * (score + 1) / 10
	return score
}

// Registers packs the gain index into both nibbles of the analog gain
// register, then writes the conversion-gain select and the coarse
// integration time.
func (s *ar0231) Registers(expTime, gainIdx int, dcGain bool) []RegWrite {
	gainReg := uint16(0xFF00 | gainIdx<<4 | gainIdx)
	var dc uint16
	if dcGain {
		dc = 1
	}
	return []RegWrite{
		{Addr: 0x3366, Data: gainReg},
		{Addr: 0x3362, Data: dc},
		{Addr: 0x3012, Data: uint16(expTime)},
	}
}
