package fallback

import (
	"sort"
)

const DeviceTypeHeater = "heater"

// Entry is the fallback data for one model or series.
type Entry struct {
	DeviceType string
	Config     map[string]any
}

// Table maps model and series identifiers to fallback entries. A Table is
// read-only once built.
type Table struct {
	unit    Unit
	entries map[string]Entry
}

// DefaultTable holds Fahrenheit data, the unit the Dreo cloud reports for
// these heaters.
var DefaultTable = NewTable(Fahrenheit)

func NewTable(unit Unit) *Table {
	t := &Table{
		unit:    unit,
		entries: make(map[string]Entry),
	}

	// WH714S is the series name for DR-HSH034S
	for _, id := range []string{"DR-HSH034S", "WH714S"} {
		t.entries[id] = Entry{
			DeviceType: DeviceTypeHeater,
			Config:     toGeneric(hsh034s(unit)),
		}
	}

	return t
}

func (t *Table) Unit() Unit {
	return t.unit
}

// Lookup returns the entry for model, or for series when model is unknown.
// The returned entry is a copy and may be modified by the caller.
func (t *Table) Lookup(model, series string) (Entry, bool) {
	e, ok := t.entries[model]
	if !ok && series != "" {
		e, ok = t.entries[series]
	}
	if !ok {
		return Entry{}, false
	}
	return Entry{
		DeviceType: e.DeviceType,
		Config:     Clone(e.Config).(map[string]any),
	}, true
}

func (t *Table) Models() []string {
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup searches DefaultTable.
func Lookup(model, series string) (Entry, bool) {
	return DefaultTable.Lookup(model, series)
}

func hsh034s(unit Unit) DeviceConfig {
	tempRange := []float64{41, 85}
	if unit == Celsius {
		tempRange = []float64{5, 29}
	}

	preset := func(mode string) ModeRelation {
		return ModeRelation{
			Report: Report{
				DirectiveValue: mode,
				HvacModeValue:  "heat",
			},
			Controls: []Directive{
				{Name: "mode", Value: mode},
			},
			SupportedFeatures: []int{
				FeatureTargetTemperature,
				FeaturePresetMode,
			},
		}
	}

	return DeviceConfig{
		Heater: &HeaterEntityConfig{
			HvacModes:        []string{"off", "heat", "fan_only"},
			PresetModes:      []string{"eco", "manual"},
			TemperatureRange: tempRange,
			TemperatureUnit:  string(unit),
			HvacModeRelate: map[string]ModeRelation{
				"eco":    preset("eco"),
				"manual": preset("manual"),
			},
		},
		EntitySupports: []string{"climate", "sensor"},
		Sensors: map[string]SensorEntityConfig{
			"temperature": {
				AttrName:      "temperature",
				DirectiveName: "temperature",
				StateAttrName: "temperature",
				SensorClass:   "temperature",
				AttrIcon:      "mdi:thermometer",
				NativeUnit:    unit.Symbol(),
			},
		},
		Toggles: map[string]ToggleEntityConfig{
			"oscillate":   {Field: "oscillate", OperableWhenOff: false},
			"childlockon": {Field: "childlockon", OperableWhenOff: true},
			"muteon":      {Field: "muteon", OperableWhenOff: true},
			"lighton":     {Field: "lighton", OperableWhenOff: true},
		},
	}
}
