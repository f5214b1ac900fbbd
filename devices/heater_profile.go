package devices

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"senhaerens.be/hap-dreo/fallback"
)

var (
	ErrNotHeater      = errors.New("device is not a heater")
	ErrNoHeaterConfig = errors.New("heater_entity_config is missing")
)

// Directive fields of the heater state and command payloads.
const (
	powerField       = "poweron"
	modeField        = "mode"
	targetTempField  = "ecolevel"
	defaultTempField = "temperature"

	temperatureSensor = "temperature"
	hvacModeHeat      = "heat"
)

type Preset struct {
	Name string
	// ReportValue is the "mode" value the heater reports while in this preset.
	ReportValue       string
	HvacMode          string
	Controls          []fallback.Directive
	TargetTemperature bool
}

type Toggle struct {
	Key             string
	Field           string
	OperableWhenOff bool
}

// HeaterProfile is what an accessory needs to know about a heater, taken from
// its (merged) device record.
type HeaterProfile struct {
	Model            string
	Unit             fallback.Unit
	MinTemp          float64
	MaxTemp          float64
	TemperatureField string
	Presets          []Preset
	Toggles          []Toggle
}

func ParseHeater(record map[string]any) (HeaterProfile, error) {
	var p HeaterProfile

	if t, _ := record[fallback.KeyDeviceType].(string); t != fallback.DeviceTypeHeater {
		return p, fmt.Errorf("%w: device type %q", ErrNotHeater, t)
	}
	p.Model, _ = record[fallback.KeyModel].(string)

	dc, err := fallback.Decode(record[fallback.KeyConfig])
	if err != nil {
		return p, err
	}
	h := dc.Heater
	if h == nil {
		return p, ErrNoHeaterConfig
	}

	if p.Unit, err = fallback.ParseUnit(h.TemperatureUnit); err != nil {
		return p, err
	}
	if len(h.TemperatureRange) != 2 || h.TemperatureRange[0] >= h.TemperatureRange[1] {
		return p, fmt.Errorf("invalid temperature_range %v", h.TemperatureRange)
	}
	p.MinTemp, p.MaxTemp = h.TemperatureRange[0], h.TemperatureRange[1]

	p.TemperatureField = defaultTempField
	if s, ok := dc.Sensors[temperatureSensor]; ok && s.StateAttrName != "" {
		p.TemperatureField = s.StateAttrName
	}

	for _, name := range h.PresetModes {
		rel, ok := h.HvacModeRelate[name]
		if !ok {
			continue
		}
		preset := Preset{
			Name:              name,
			ReportValue:       rel.Report.DirectiveValue,
			HvacMode:          rel.Report.HvacModeValue,
			Controls:          rel.Controls,
			TargetTemperature: rel.Supports(fallback.FeatureTargetTemperature),
		}
		if preset.ReportValue == "" {
			preset.ReportValue = name
		}
		p.Presets = append(p.Presets, preset)
	}

	for key, t := range dc.Toggles {
		field := t.Field
		if field == "" {
			field = key
		}
		p.Toggles = append(p.Toggles, Toggle{Key: key, Field: field, OperableWhenOff: t.OperableWhenOff})
	}
	sort.Slice(p.Toggles, func(i, j int) bool { return p.Toggles[i].Key < p.Toggles[j].Key })

	return p, nil
}

// PresetFor returns the preset reporting mode value v.
func (p HeaterProfile) PresetFor(v string) (Preset, bool) {
	for _, preset := range p.Presets {
		if preset.ReportValue == v {
			return preset, true
		}
	}
	return Preset{}, false
}

// ToCelsius converts a device temperature for HomeKit, which only speaks
// Celsius.
func (p HeaterProfile) ToCelsius(v float64) float64 {
	if p.Unit == fallback.Fahrenheit {
		return (v - 32) * 5 / 9
	}
	return v
}

// FromCelsius converts a HomeKit temperature to a whole device degree within
// the heater range.
func (p HeaterProfile) FromCelsius(v float64) int {
	if p.Unit == fallback.Fahrenheit {
		v = v*9/5 + 32
	}
	v = math.Max(p.MinTemp, math.Min(p.MaxTemp, math.Round(v)))
	return int(v)
}
