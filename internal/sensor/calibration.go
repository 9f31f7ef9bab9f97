package sensor

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed calibration.yaml
var builtinCalibration []byte

// Calibrations maps a model name to its table.
type Calibrations map[string]*Calibration

// DefaultCalibrations returns the built-in tables.
func DefaultCalibrations() (Calibrations, error) {
	return ParseCalibrations(builtinCalibration)
}

// LoadCalibrations reads a calibration file. Models missing from the file
// keep their built-in tables.
func LoadCalibrations(path string) (Calibrations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading calibration file: %w", err)
	}

	cals, err := DefaultCalibrations()
	if err != nil {
		return nil, err
	}
	override, err := ParseCalibrations(data)
	if err != nil {
		return nil, err
	}
	for model, cal := range override {
		cals[model] = cal
	}
	return cals, nil
}

// ParseCalibrations decodes and validates a YAML document keyed by model name.
func ParseCalibrations(data []byte) (Calibrations, error) {
	var cals Calibrations
	if err := yaml.Unmarshal(data, &cals); err != nil {
		return nil, fmt.Errorf("parsing calibration: %w", err)
	}
	for model, cal := range cals {
		if _, ok := constructors[model]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
		}
		if cal == nil {
			return nil, fmt.Errorf("%w: %s: empty table", ErrInvalidCalibration, model)
		}
		if err := cal.finalize(model); err != nil {
			return nil, err
		}
	}
	return cals, nil
}

var constructors = map[string]func(*Calibration) Sensor{
	ModelAR0231:  func(c *Calibration) Sensor { return &ar0231{cal: c} },
	ModelOX03C10: func(c *Calibration) Sensor { return &ox03c10{cal: c} },
	ModelOS04C10: func(c *Calibration) Sensor { return &os04c10{cal: c} },
}

// New returns the Sensor for model using its table from cs.
func (cs Calibrations) New(model string) (Sensor, error) {
	ctor, ok := constructors[model]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	cal, ok := cs[model]
	if !ok {
		return nil, fmt.Errorf("%w: no calibration for %q", ErrInvalidCalibration, model)
	}
	// Each sensor gets its own copy so cameras sharing a model never alias.
	cp := *cal
	cp.Gains = append([]float64(nil), cal.Gains...)
	return ctor(&cp), nil
}

// Models lists the models in cs, sorted.
func (cs Calibrations) Models() []string {
	models := make([]string, 0, len(cs))
	for m := range cs {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}
