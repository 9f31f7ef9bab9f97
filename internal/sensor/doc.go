// Package sensor describes the image sensors camerad drives.
//
// A Sensor pairs a Calibration table (gain table, exposure-time bounds,
// conversion-gain hysteresis and weighting) with two model-specific
// functions: Score ranks a candidate (time, gain) pair against a desired
// exposure value, and Registers renders a setting into the register writes
// that apply it.
//
// Built-in tables for the AR0231, OX03C10 and OS04C10 are embedded from
// calibration.yaml. A replacement file can be loaded with LoadCalibrations.
package sensor
