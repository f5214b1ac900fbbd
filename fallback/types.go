package fallback

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Unit string

const (
	Fahrenheit Unit = "fahrenheit"
	Celsius    Unit = "celsius"
)

func ParseUnit(s string) (Unit, error) {
	switch Unit(strings.ToLower(s)) {
	case "", Fahrenheit:
		return Fahrenheit, nil
	case Celsius:
		return Celsius, nil
	}
	return "", fmt.Errorf("unknown temperature unit %q", s)
}

// Symbol returns the unit of measurement shown next to sensor readings.
func (u Unit) Symbol() string {
	if u == Celsius {
		return "°C"
	}
	return "°F"
}

// Climate entity feature flags, same bit values as the Home Assistant
// ClimateEntityFeature enum the cloud config refers to.
const (
	FeatureTargetTemperature      = 1
	FeatureTargetTemperatureRange = 2
	FeatureTargetHumidity         = 4
	FeatureFanMode                = 8
	FeaturePresetMode             = 16
	FeatureSwingMode              = 32
)

type Directive struct {
	Name  string `json:"directive_name"`
	Value string `json:"directive_value"`
}

type Report struct {
	DirectiveValue string `json:"directive_value"`
	HvacModeValue  string `json:"hvac_mode_value"`
}

type ModeRelation struct {
	Report            Report      `json:"report"`
	Controls          []Directive `json:"controls"`
	SupportedFeatures []int       `json:"supported_features"`
}

// Supports reports whether all feature bits in f are listed.
func (m ModeRelation) Supports(f int) bool {
	var mask int
	for _, sf := range m.SupportedFeatures {
		mask |= sf
	}
	return mask&f == f
}

type HeaterEntityConfig struct {
	HvacModes        []string                `json:"hvac_modes"`
	PresetModes      []string                `json:"preset_modes"`
	TemperatureRange []float64               `json:"temperature_range"`
	TemperatureUnit  string                  `json:"temperature_unit"`
	HvacModeRelate   map[string]ModeRelation `json:"hvac_mode_relate_map"`
}

type SensorEntityConfig struct {
	AttrName      string `json:"attr_name"`
	DirectiveName string `json:"directive_name"`
	StateAttrName string `json:"state_attr_name"`
	SensorClass   string `json:"sensor_class"`
	AttrIcon      string `json:"attr_icon"`
	NativeUnit    string `json:"native_unit_of_measurement"`
}

type ToggleEntityConfig struct {
	Field           string `json:"field"`
	OperableWhenOff bool   `json:"operable_when_off"`
}

// DeviceConfig is the typed form of a device record's "config" section.
type DeviceConfig struct {
	Heater         *HeaterEntityConfig           `json:"heater_entity_config,omitempty"`
	EntitySupports []string                      `json:"entitySupports,omitempty"`
	Sensors        map[string]SensorEntityConfig `json:"sensor_entity_config,omitempty"`
	Toggles        map[string]ToggleEntityConfig `json:"toggle_entity_config,omitempty"`
}

// Decode converts a generic config value, as found in a device record, into
// a DeviceConfig.
func Decode(config any) (DeviceConfig, error) {
	var dc DeviceConfig
	b, err := json.Marshal(config)
	if err != nil {
		return dc, fmt.Errorf("encode config: %w", err)
	}
	if err := json.Unmarshal(b, &dc); err != nil {
		return dc, fmt.Errorf("decode config: %w", err)
	}
	return dc, nil
}

func toGeneric(dc DeviceConfig) map[string]any {
	b, err := json.Marshal(dc)
	if err != nil {
		panic(fmt.Sprintf("fallback: encode table entry: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(fmt.Sprintf("fallback: decode table entry: %v", err))
	}
	return m
}
