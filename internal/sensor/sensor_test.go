package sensor

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func mustSensor(t *testing.T, model string) Sensor {
	t.Helper()
	cals, err := DefaultCalibrations()
	if err != nil {
		t.Fatalf("DefaultCalibrations() error = %v", err)
	}
	s, err := cals.New(model)
	if err != nil {
		t.Fatalf("New(%q) error = %v", model, err)
	}
	return s
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// =============================================================================
// Calibration tables
// =============================================================================

func TestDefaultCalibrations(t *testing.T) {
	cals, err := DefaultCalibrations()
	if err != nil {
		t.Fatalf("DefaultCalibrations() error = %v", err)
	}

	want := []string{ModelAR0231, ModelOS04C10, ModelOX03C10}
	if got := cals.Models(); !reflect.DeepEqual(got, want) {
		t.Errorf("Models() = %v, want %v", got, want)
	}

	for _, model := range want {
		cal := cals[model]
		if cal.MinEV <= 0 || cal.MaxEV <= cal.MinEV {
			t.Errorf("%s: EV bounds [%v, %v] not derived", model, cal.MinEV, cal.MaxEV)
		}
	}
}

func TestCalibration_DerivedEVBounds(t *testing.T) {
	cal := mustSensor(t, ModelAR0231).Calibration()

	if !approx(cal.MinEV, 2*0.25) {
		t.Errorf("MinEV = %v, want 0.5", cal.MinEV)
	}
	if !approx(cal.MaxEV, 2133*2.5*4.0) {
		t.Errorf("MaxEV = %v, want %v", cal.MaxEV, 2133*2.5*4.0)
	}
}

func TestCalibration_Blend(t *testing.T) {
	cal := mustSensor(t, ModelAR0231).Calibration()

	if got := cal.Blend(cal.DCGainMinWeight); !approx(got, 1) {
		t.Errorf("Blend(min) = %v, want 1", got)
	}
	if got := cal.Blend(cal.DCGainMaxWeight); !approx(got, cal.DCGainFactor) {
		t.Errorf("Blend(max) = %v, want %v", got, cal.DCGainFactor)
	}

	os := mustSensor(t, ModelOS04C10).Calibration()
	if got := os.Blend(1); !approx(got, 1) {
		t.Errorf("OS04C10 Blend(1) = %v, want 1", got)
	}
}

func TestCalibration_Clamps(t *testing.T) {
	cal := mustSensor(t, ModelOX03C10).Calibration()

	tests := []struct {
		name string
		got  int
		want int
	}{
		{"time below", cal.ClampTime(0), cal.ExposureTimeMin},
		{"time above", cal.ClampTime(100000), cal.ExposureTimeMax},
		{"time inside", cal.ClampTime(500), 500},
		{"gain below", cal.ClampGainIdx(-3), cal.GainMinIdx},
		{"gain above", cal.ClampGainIdx(99), cal.GainMaxIdx},
		{"weight below", cal.ClampWeight(0), cal.DCGainMinWeight},
		{"weight above", cal.ClampWeight(1000), cal.DCGainMaxWeight},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestCalibration_EVPercent(t *testing.T) {
	cal := mustSensor(t, ModelOX03C10).Calibration()

	tests := []struct {
		ev   float64
		want float64
	}{
		{cal.MinEV, 0},
		{cal.MaxEV, 100},
		{cal.MinEV - 1, 0},
		{cal.MaxEV * 2, 100},
		{(cal.MinEV + cal.MaxEV) / 2, 50},
	}
	for _, tt := range tests {
		if got := cal.EVPercent(tt.ev); !approx(got, tt.want) {
			t.Errorf("EVPercent(%v) = %v, want %v", tt.ev, got, tt.want)
		}
	}
}

func TestParseCalibrations_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "unknown model",
			yaml: "imx390:\n  pixel_size_mm: 0.003\n",
			want: ErrUnknownModel,
		},
		{
			name: "gain index outside table",
			yaml: `os04c10:
  pixel_size_mm: 0.002
  exposure_time_min: 2
  exposure_time_max: 100
  analog_gains: [1.0, 2.0]
  analog_gain_min_idx: 0
  analog_gain_rec_idx: 1
  analog_gain_max_idx: 2
  dc_gain_factor: 1
  dc_gain_min_weight: 1
  dc_gain_max_weight: 1
`,
			want: ErrInvalidCalibration,
		},
		{
			name: "zero max weight",
			yaml: `os04c10:
  pixel_size_mm: 0.002
  exposure_time_min: 2
  exposure_time_max: 100
  analog_gains: [1.0, 2.0]
  analog_gain_max_idx: 1
  dc_gain_factor: 1
`,
			want: ErrInvalidCalibration,
		},
		{
			name: "decreasing gains",
			yaml: `os04c10:
  pixel_size_mm: 0.002
  exposure_time_min: 2
  exposure_time_max: 100
  analog_gains: [2.0, 1.0]
  analog_gain_max_idx: 1
  dc_gain_factor: 1
  dc_gain_max_weight: 1
`,
			want: ErrInvalidCalibration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCalibrations([]byte(tt.yaml))
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseCalibrations() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadCalibrations_OverridesOneModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	content := `os04c10:
  pixel_size_mm: 0.002
  exposure_time_min: 4
  exposure_time_max: 1000
  analog_gains: [1.0, 2.0, 4.0]
  analog_gain_min_idx: 0
  analog_gain_rec_idx: 1
  analog_gain_max_idx: 2
  dc_gain_factor: 1
  dc_gain_min_weight: 1
  dc_gain_max_weight: 1
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cals, err := LoadCalibrations(path)
	if err != nil {
		t.Fatalf("LoadCalibrations() error = %v", err)
	}
	if cals[ModelOS04C10].ExposureTimeMin != 4 {
		t.Errorf("override not applied: %+v", cals[ModelOS04C10])
	}
	if _, ok := cals[ModelAR0231]; !ok {
		t.Error("built-in AR0231 table dropped")
	}

	if _, err := LoadCalibrations(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadCalibrations(missing) expected error")
	}
}

func TestNew(t *testing.T) {
	cals, err := DefaultCalibrations()
	if err != nil {
		t.Fatalf("DefaultCalibrations() error = %v", err)
	}

	if _, err := cals.New("imx390"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("New(unknown) error = %v, want ErrUnknownModel", err)
	}

	a, _ := cals.New(ModelOX03C10)
	b, _ := cals.New(ModelOX03C10)
	a.Calibration().Gains[0] = 99
	if b.Calibration().Gains[0] == 99 {
		t.Error("sensors of the same model share a calibration table")
	}
	if a.Model() != ModelOX03C10 {
		t.Errorf("Model() = %q", a.Model())
	}
}

// =============================================================================
// Scoring
// =============================================================================

func TestAR0231_Score(t *testing.T) {
	s := mustSensor(t, ModelAR0231)

	tests := []struct {
		name    string
		t       int
		g       int
		gain    float64
		cur     int
		desired float64
		want    float64
	}{
		{"exact at recommended", 100, 7, 1.0, 7, 100, 0},
		{"one step above recommended", 80, 8, 1.25, 7, 100, 5 + 6.0/10},
		{"ev error dominates", 90, 7, 1.0, 7, 100, 100},
		{"one step below recommended", 100, 6, 0.8, 6, 80, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.desired, tt.t, tt.g, tt.gain, tt.cur)
			if !approx(got, tt.want) {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOmnivision_Score(t *testing.T) {
	s := mustSensor(t, ModelOX03C10)

	// |100-100| + |6-2|*6.4 + ((1+0.125) - 0.125*6/16) * 1 * 5
	want := 25.6 + (1.125-0.125*6.0/16.0)*5
	if got := s.Score(100, 50, 6, 2.0, 5); !approx(got, want) {
		t.Errorf("Score() = %v, want %v", got, want)
	}

	// Staying put at the recommended index costs only the EV error.
	if got := s.Score(100, 90, 2, 1.25, 2); !approx(got, 12.5) {
		t.Errorf("Score() = %v, want 12.5", got)
	}
}

// =============================================================================
// Register rendering
// =============================================================================

func TestAR0231_Registers(t *testing.T) {
	s := mustSensor(t, ModelAR0231)

	got := s.Registers(300, 7, true)
	want := []RegWrite{
		{Addr: 0x3366, Data: 0xFF77},
		{Addr: 0x3362, Data: 1},
		{Addr: 0x3012, Data: 300},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Registers() = %v, want %v", got, want)
	}

	if off := s.Registers(300, 7, false); off[1].Data != 0 {
		t.Errorf("dc gain off wrote %#x", off[1].Data)
	}
}

func TestOX03C10_Registers(t *testing.T) {
	s := mustSensor(t, ModelOX03C10)

	tests := []struct {
		name string
		t    int
		g    int
		want []RegWrite
	}{
		{
			name: "long exposure",
			t:    1000,
			g:    6,
			want: []RegWrite{
				{0x3501, 0x03}, {0x3502, 0xE8},
				{0x3581, 0x03}, {0x3582, 0xE8},
				{0x3541, 0x03}, {0x3542, 0xE8},
				{0x35c2, 25},
				{0x3508, 0x02}, {0x3509, 0x00},
			},
		},
		{
			name: "short exposure stretches split pixel",
			t:    100,
			g:    0,
			want: []RegWrite{
				{0x3501, 0x00}, {0x3502, 0x64},
				{0x3581, 0x00}, {0x3582, 0x64},
				{0x3541, 0x02}, {0x3542, 0xAB},
				{0x35c2, 2},
				{0x3508, 0x01}, {0x3509, 0x00},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Registers(tt.t, tt.g, true); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Registers() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOS04C10_Registers(t *testing.T) {
	s := mustSensor(t, ModelOS04C10)

	got := s.Registers(500, 0, false)
	want := []RegWrite{
		{0x3501, 0x01}, {0x3502, 0xF4},
		{0x3508, 0x01}, {0x3509, 0x00},
		{0x350c, 0x01}, {0x350d, 0x00},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Registers() = %v, want %v", got, want)
	}
}
