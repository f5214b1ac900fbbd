package devices

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"senhaerens.be/hap-dreo/config"
	"senhaerens.be/hap-dreo/fallback"
	"senhaerens.be/hap-dreo/metrics"
	"senhaerens.be/hap-dreo/service"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.mqtt.golang"
)

type heaterState struct {
	on     bool
	preset string
	target float64
}

type DreoHeater struct {
	*accessory.A
	*service.Heater
	Presets []*service.NamedSwitch
	Toggles []*service.NamedSwitch

	config  config.Device
	profile HeaterProfile
	topics  Topics
	metrics *metrics.Metrics

	mu    sync.Mutex
	state heaterState
}

func NewDreoHeater(id int, config config.Device, profile HeaterProfile, topics Topics, m *metrics.Metrics) *DreoHeater {
	name := config.Name
	model := "Heater"
	if profile.Model != "" {
		model = profile.Model
	}
	if config.FriendlyName != "" {
		name = config.FriendlyName
		model = fmt.Sprintf("%s (%s)", model, config.Name)
	}

	a := DreoHeater{}
	a.A = accessory.New(accessory.Info{
		Name:         name,
		Model:        model,
		Manufacturer: "Dreo",
	}, accessory.TypeThermostat)
	a.Id = uint64(id)
	log.Infof("HAP Create Accessory %4d - %s", a.Id, config.Name)

	a.Heater = service.NewHeater()
	a.TargetTemperature.SetMinValue(profile.ToCelsius(profile.MinTemp))
	a.TargetTemperature.SetMaxValue(profile.ToCelsius(profile.MaxTemp))
	a.TargetTemperature.SetValue(profile.ToCelsius(profile.MinTemp))
	if profile.Unit == fallback.Fahrenheit {
		a.TemperatureDisplayUnits.SetValue(characteristic.TemperatureDisplayUnitsFahrenheit)
	} else {
		a.TemperatureDisplayUnits.SetValue(characteristic.TemperatureDisplayUnitsCelsius)
	}
	a.AddS(a.Heater.S)

	for _, p := range profile.Presets {
		s := service.NewNamedSwitch(displayName(p.Name))
		a.Presets = append(a.Presets, s)
		a.AddS(s.S)
	}
	for _, t := range profile.Toggles {
		s := service.NewNamedSwitch(displayName(t.Key))
		a.Toggles = append(a.Toggles, s)
		a.AddS(s.S)
	}

	if m == nil {
		m = metrics.New()
	}
	a.config = config
	a.profile = profile
	a.topics = topics
	a.metrics = m
	a.state.target = a.TargetTemperature.Value()

	return &a
}

func (a *DreoHeater) Accessory() *accessory.A {
	return a.A
}

func (a *DreoHeater) Listen(client mqtt.Client) {
	// MQTT -> HAP
	client.Subscribe(a.topics.Online, 1, func(_ mqtt.Client, msg mqtt.Message) {
		msg.Ack()
		payload := string(msg.Payload())
		log.Debugf("MQTT received %s from %s", payload, msg.Topic())
		a.metrics.Messages.WithLabelValues(a.config.Name, "online").Inc()

		if strings.ToLower(payload) == "false" {
			log.Infof("MQTT %s is offline", a.config.Name)
		}
	})

	client.Subscribe(a.topics.State, 1, func(_ mqtt.Client, msg mqtt.Message) {
		msg.Ack()
		log.Debugf("MQTT received %s from %s", msg.Payload(), msg.Topic())
		a.metrics.Messages.WithLabelValues(a.config.Name, "state").Inc()

		var state map[string]any
		err := json.Unmarshal(msg.Payload(), &state)
		if err != nil {
			log.Error("Failed to decode JSON payload", "err", err)
			return
		}
		a.applyState(state)
	})

	// HAP -> MQTT
	a.TargetHeatingCoolingState.OnValueRemoteUpdate(func(v int) {
		switch v {
		case characteristic.TargetHeatingCoolingStateOff:
			a.setPower(client, false)
		case characteristic.TargetHeatingCoolingStateHeat:
			a.setPower(client, true)
		default:
			log.Warn("Heater only supports off and heat", "device", a.config.Name, "mode", v)
			a.reject("hvac_mode")
			a.mu.Lock()
			a.syncHvac()
			a.mu.Unlock()
		}
	})

	a.TargetTemperature.OnValueRemoteUpdate(func(v float64) {
		a.mu.Lock()
		preset, _ := a.presetByName(a.state.preset)
		if a.state.preset != "" && !preset.TargetTemperature {
			a.TargetTemperature.SetValue(a.state.target)
			a.mu.Unlock()
			log.Warn("Preset has no target temperature", "device", a.config.Name, "preset", a.state.preset)
			a.reject("target_temperature")
			return
		}
		a.state.target = v
		a.mu.Unlock()

		a.publish(client, map[string]any{targetTempField: a.profile.FromCelsius(v)})
	})

	for i, p := range a.profile.Presets {
		p, s := p, a.Presets[i]
		s.On.OnValueRemoteUpdate(func(on bool) {
			a.mu.Lock()
			if !on {
				active := a.state.preset == p.Name
				a.mu.Unlock()
				if active {
					s.On.SetValue(true)
					a.reject("preset")
				}
				return
			}
			a.state.preset = p.Name
			a.syncPresets()
			a.syncHvac()
			a.mu.Unlock()

			payload := map[string]any{}
			for _, d := range p.Controls {
				payload[d.Name] = d.Value
			}
			a.publish(client, payload)
		})
	}

	for i, t := range a.profile.Toggles {
		t, s := t, a.Toggles[i]
		s.On.OnValueRemoteUpdate(func(on bool) {
			a.mu.Lock()
			powered := a.state.on
			a.mu.Unlock()

			if !powered && !t.OperableWhenOff {
				log.Warn("Toggle is not operable while heater is off", "device", a.config.Name, "toggle", t.Key)
				s.On.SetValue(!on)
				a.reject("off")
				return
			}
			a.publish(client, map[string]any{t.Field: on})
		})
	}
}

func (a *DreoHeater) applyState(state map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if on, ok := state[powerField].(bool); ok {
		a.state.on = on
	}
	if mode, ok := state[modeField].(string); ok {
		if p, ok := a.profile.PresetFor(mode); ok {
			a.state.preset = p.Name
		} else {
			log.Debug("Unknown heater mode", "device", a.config.Name, "mode", mode)
		}
	}
	if v, ok := state[a.profile.TemperatureField].(float64); ok {
		a.CurrentTemperature.SetValue(a.profile.ToCelsius(v))
	}
	if v, ok := state[targetTempField].(float64); ok {
		a.state.target = a.profile.ToCelsius(v)
		a.TargetTemperature.SetValue(a.state.target)
	}
	for i, t := range a.profile.Toggles {
		if v, ok := state[t.Field].(bool); ok {
			a.Toggles[i].On.SetValue(v)
		}
	}

	a.syncPresets()
	a.syncHvac()
}

func (a *DreoHeater) setPower(client mqtt.Client, on bool) {
	a.mu.Lock()
	a.state.on = on
	a.syncHvac()
	a.mu.Unlock()

	a.publish(client, map[string]any{powerField: on})
}

// syncHvac derives the heating states from a.state. Callers hold a.mu.
func (a *DreoHeater) syncHvac() {
	if !a.state.on {
		a.TargetHeatingCoolingState.SetValue(characteristic.TargetHeatingCoolingStateOff)
		a.CurrentHeatingCoolingState.SetValue(characteristic.CurrentHeatingCoolingStateOff)
		return
	}

	a.TargetHeatingCoolingState.SetValue(characteristic.TargetHeatingCoolingStateHeat)
	preset, ok := a.presetByName(a.state.preset)
	if !ok || preset.HvacMode == hvacModeHeat {
		a.CurrentHeatingCoolingState.SetValue(characteristic.CurrentHeatingCoolingStateHeat)
	} else {
		a.CurrentHeatingCoolingState.SetValue(characteristic.CurrentHeatingCoolingStateOff)
	}
}

// syncPresets turns on the switch of the active preset only. Callers hold a.mu.
func (a *DreoHeater) syncPresets() {
	for i, p := range a.profile.Presets {
		a.Presets[i].On.SetValue(p.Name == a.state.preset)
	}
}

func (a *DreoHeater) presetByName(name string) (Preset, bool) {
	for _, p := range a.profile.Presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

func (a *DreoHeater) publish(client mqtt.Client, directives map[string]any) {
	payload, err := json.Marshal(directives)
	if err != nil {
		log.Error("Failed to encode JSON payload", "err", err)
		return
	}
	token := client.Publish(a.topics.Set, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Error("MQTT publish failed", "topic", a.topics.Set, "error", err)
		return
	}
	a.metrics.Commands.WithLabelValues(a.config.Name).Inc()
	log.Debugf("MQTT published %s to %s", payload, a.topics.Set)
}

func (a *DreoHeater) reject(reason string) {
	a.metrics.Rejected.WithLabelValues(a.config.Name, reason).Inc()
}

func displayName(key string) string {
	switch key {
	case "childlockon":
		return "Child Lock"
	case "muteon":
		return "Mute"
	case "lighton":
		return "Display Light"
	case "oscillate":
		return "Oscillate"
	}
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}
