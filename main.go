package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"senhaerens.be/hap-dreo/config"
	"senhaerens.be/hap-dreo/devices"
	"senhaerens.be/hap-dreo/fallback"
	"senhaerens.be/hap-dreo/metrics"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	haplog "github.com/brutella/hap/log"
	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v2"
)

const (
	programName string = "hap-dreo"
)

var (
	configPath  = flag.String("config", "data/config.yml", "Configuration filepath")
	printConfig = flag.Bool("printcfg", false, "Print configuration")
	debugLog    = flag.Bool("debug", false, "Enable debug log")
	debugHapLog = flag.Bool("debughap", false, "Enable HAP debug log")
)

func setupConfig(fpath string, print bool) config.Config {
	f, err := os.Open(fpath)
	if err != nil {
		log.Fatal("Config filepath not found", "error", err)
	}
	defer f.Close()

	var cfg config.Config
	decoder := yaml.NewDecoder(f)
	err = decoder.Decode(&cfg)
	if err != nil {
		log.Fatal("Failed decoding configuration", "error", err)
	}
	cfg.SetDefaults(programName)

	if print {
		d, err := yaml.Marshal(&cfg)
		if err != nil {
			log.Fatal("Failed printing configuration", "error", err)
		}
		fmt.Printf("# %s\n%s\n", fpath, string(d))
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", "error", err)
	}

	return cfg
}

func setupMqtt(cfg config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Mqtt.Broker)

	if cfg.Mqtt.Username != "" {
		opts.SetUsername(cfg.Mqtt.Username)
	}
	if cfg.Mqtt.Password != "" {
		opts.SetPassword(cfg.Mqtt.Password)
	}

	log.Debug("MQTT Set", "Clientid", cfg.Mqtt.ClientID)
	opts.SetClientID(cfg.Mqtt.ClientID)

	opts.OnConnect = func(_ mqtt.Client) {
		log.Info("MQTT connected", "broker", opts.Servers)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Error("MQTT connection lost", "error", err)
	}

	return opts
}

func setupMetrics(cfg config.Config, m *metrics.Metrics) {
	registry := prometheus.NewRegistry()
	if err := m.Register(registry); err != nil {
		log.Fatal("Failed registering metrics", "error", err)
	}
	if cfg.Metrics.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	go func() {
		log.Info("Serving metrics", "address", cfg.Metrics.Addr)
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
			log.Error("Metrics listener stopped", "error", err)
		}
	}()
}

func setupSignals() context.Context {
	chanSigs := make(chan os.Signal, 1)
	signal.Notify(chanSigs, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-chanSigs
		log.Debug("Received", "signal", sig)
		log.Info("Stopping " + programName)
		signal.Stop(chanSigs)
		cancel()
	}()

	return ctx
}

type devicer interface {
	Listen(mqtt.Client)
	Accessory() *accessory.A
}

type deviceOptions struct {
	configs     []config.Device
	offset      int
	mqttClient  mqtt.Client
	accessories *[]*accessory.A
}

// makeDevices skips devices for which newDevice reports an error.
func makeDevices[T devicer](newDevice func(int, config.Device) (T, error), opts deviceOptions) []T {
	devices := make([]T, 0, len(opts.configs))

	for i, config := range opts.configs {
		device, err := newDevice(i+opts.offset, config)
		if err != nil {
			log.Error("Skipping device", "name", config.Name, "error", err)
			continue
		}
		device.Listen(opts.mqttClient)
		devices = append(devices, device)
		*opts.accessories = append(*opts.accessories, device.Accessory())
	}

	return devices
}

// heaterFactory builds heaters from their cloud record, completed from the
// fallback table.
func heaterFactory(cfg config.Config, client mqtt.Client, m *metrics.Metrics) func(int, config.Device) (*devices.DreoHeater, error) {
	resolver := cfg.Resolver()
	log.Debug("Fallback", "policy", resolver.Policy, "unit", resolver.Table.Unit())

	return func(id int, dev config.Device) (*devices.DreoHeater, error) {
		topics := devices.TopicsFor(cfg.Dreo.TopicPrefix, dev.Name)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Dreo.RecordTimeout)
		record, err := devices.FetchRecord(ctx, client, topics.Device)
		cancel()
		if err != nil {
			log.Warn("Using configured model", "device", dev.Name, "error", err)
			record = dev.Record()
		}

		matched, changed := resolver.Resolve(record)
		model, _ := record[fallback.KeyModel].(string)
		m.Resolutions.WithLabelValues(model, metrics.ResultFor(matched, changed)).Inc()
		log.Debug("Fallback applied", "device", dev.Name, "model", model, "matched", matched, "changed", changed)

		profile, err := devices.ParseHeater(record)
		if err != nil {
			return nil, err
		}
		return devices.NewDreoHeater(id, dev, profile, topics, m), nil
	}
}

func main() {
	flag.Parse()

	// Do not output timestamp when running under systemd
	if a, b := os.Getenv("INVOCATION_ID"), os.Getenv("JOURNAL_STREAM"); a != "" && b != "" {
		log.SetReportTimestamp(false)
	}

	if *debugHapLog {
		haplog.Debug.Enable()
	}

	// Setup config
	cfg := setupConfig(*configPath, *printConfig)
	if *debugLog {
		log.SetLevel(log.DebugLevel)
	}

	m := metrics.New()
	setupMetrics(cfg, m)

	// Setup MQTT client
	mqttOpts := setupMqtt(cfg)
	mqttClient := mqtt.NewClient(mqttOpts)
	log.Debug("Starting MQTT client")
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal("MQTT could not connect", "token", token.Error())
	}

	// Setup HAP Bridge
	hapBridge := accessory.NewBridge(accessory.Info{
		Name:         programName,
		Manufacturer: "Dreo",
	})
	hapBridge.Id = 1
	log.Infof("HAP Create Accessory %4d - %s (Bridge)", hapBridge.Id, hapBridge.A.Name())

	// Setup HAP Accessories
	var accessories []*accessory.A

	makeDevices[*devices.DreoHeater](heaterFactory(cfg, mqttClient, m), deviceOptions{
		configs:     cfg.Dreo.Heaters,
		offset:      2,
		mqttClient:  mqttClient,
		accessories: &accessories,
	})

	log.Debugf("%d HAP Accessories", len(accessories))

	// Setup HAP filestore
	err := os.MkdirAll(cfg.Hap.Dbdir, 0750)
	if err != nil {
		log.Fatal("Failed creating HAP dbdir", "error", err)
	}
	hapFs := hap.NewFsStore(cfg.Hap.Dbdir)

	// Setup HAP server
	hapServer, err := hap.NewServer(hapFs, hapBridge.A, accessories...)
	if err != nil {
		log.Fatal("Failed to create HAP server", "error", err)
	}

	hapServer.Ifaces = cfg.Hap.Ifaces
	hapServer.Addr = cfg.Hap.Addr
	hapServer.Pin = cfg.Hap.Pin

	ctx := setupSignals()
	log.Debug("Starting HAP server")
	log.Debugf("%d Goroutines exist", runtime.NumGoroutine())
	if err := hapServer.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Failed to start HAP server", "error", err)
	}

	mqttClient.Disconnect(250)
	log.Debugf("%d Goroutines exist", runtime.NumGoroutine())
}
