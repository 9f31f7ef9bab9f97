package sensor

import "errors"

var (
	// ErrUnknownModel is returned for a model without a register map.
	ErrUnknownModel = errors.New("sensor: unknown model")

	// ErrInvalidCalibration is returned when a calibration table is inconsistent.
	ErrInvalidCalibration = errors.New("sensor: invalid calibration")
)
