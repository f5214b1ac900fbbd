package fallback

import (
	"fmt"
	"strings"
)

const (
	KeyModel      = "model"
	KeySeries     = "seriesName"
	KeyDeviceType = "deviceType"
	KeyConfig     = "config"

	keySensors = "sensor_entity_config"
)

// Policy selects how far Resolver.Apply descends into an existing config.
type Policy int

const (
	// PolicyDeep always resolves and fills absent top-level config keys,
	// absent sensors and absent sensor attributes.
	PolicyDeep Policy = iota
	// PolicyShallow leaves devices that already carry a device type and a
	// config alone, and otherwise fills absent top-level config keys only.
	PolicyShallow
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "deep":
		return PolicyDeep, nil
	case "shallow":
		return PolicyShallow, nil
	}
	return 0, fmt.Errorf("unknown merge policy %q", s)
}

func (p Policy) String() string {
	switch p {
	case PolicyDeep:
		return "deep"
	case PolicyShallow:
		return "shallow"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

type Resolver struct {
	Table  *Table
	Policy Policy
}

// Apply fills keys absent from device with fallback data and returns the
// same map. Existing keys are never changed or removed. Devices without a
// matching table entry are returned as is.
func (r Resolver) Apply(device map[string]any) map[string]any {
	r.apply(device)
	return device
}

// Resolve is Apply but also reports whether a table entry matched and, if
// so, whether anything was added to device.
func (r Resolver) Resolve(device map[string]any) (matched, changed bool) {
	return r.apply(device)
}

func (r Resolver) apply(device map[string]any) (bool, bool) {
	if device == nil {
		return false, false
	}
	if r.Policy == PolicyShallow && !isEmpty(device[KeyDeviceType]) && !isEmpty(device[KeyConfig]) {
		return false, false
	}

	table := r.Table
	if table == nil {
		table = DefaultTable
	}
	model, _ := device[KeyModel].(string)
	series, _ := device[KeySeries].(string)
	entry, ok := table.Lookup(model, series)
	if !ok {
		return false, false
	}

	changed := false
	if _, ok := device[KeyDeviceType]; !ok {
		device[KeyDeviceType] = entry.DeviceType
		changed = true
	}

	existing, ok := device[KeyConfig]
	if !ok {
		device[KeyConfig] = entry.Config
		return true, true
	}
	config, ok := existing.(map[string]any)
	if !ok {
		return true, changed
	}

	for key, value := range entry.Config {
		cur, ok := config[key]
		if !ok {
			config[key] = value
			changed = true
			continue
		}
		if r.Policy == PolicyDeep && key == keySensors {
			if mergeSensors(cur, value) {
				changed = true
			}
		}
	}

	return true, changed
}

func mergeSensors(dst, src any) bool {
	have, ok := dst.(map[string]any)
	if !ok {
		return false
	}
	fill, ok := src.(map[string]any)
	if !ok {
		return false
	}

	changed := false
	for sensor, conf := range fill {
		cur, ok := have[sensor]
		if !ok {
			have[sensor] = conf
			changed = true
			continue
		}
		if fillMap(cur, conf) {
			changed = true
		}
	}
	return changed
}

func fillMap(dst, src any) bool {
	d, ok := dst.(map[string]any)
	if !ok {
		return false
	}
	s, ok := src.(map[string]any)
	if !ok {
		return false
	}

	changed := false
	for k, v := range s {
		if _, ok := d[k]; !ok {
			d[k] = v
			changed = true
		}
	}
	return changed
}

// Apply resolves device against DefaultTable with PolicyDeep.
func Apply(device map[string]any) map[string]any {
	return Resolver{Table: DefaultTable, Policy: PolicyDeep}.Apply(device)
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case map[string]any:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

// Clone deep copies JSON-shaped values: maps, slices and scalars.
func Clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = Clone(e)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, e := range x {
			s[i] = Clone(e)
		}
		return s
	}
	return v
}
