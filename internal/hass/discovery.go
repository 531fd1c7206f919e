// Package hass builds Home Assistant MQTT discovery announcements. Publishing
// each sensor config retained under the discovery prefix makes the device and
// its sensors appear in Home Assistant without any YAML on the hub side.
package hass

import (
	"fmt"
	"regexp"

	"github.com/retropie-ha/retropie-ha/internal/mqtt"
)

// DiscoveryPrefix is Home Assistant's default MQTT discovery namespace.
const DiscoveryPrefix = "homeassistant"

const (
	deviceModel        = "RetroPie Arcade"
	deviceManufacturer = "RetroPie"
	originName         = "RetroPie Home Assistant Integration"
	originURL          = "https://github.com/retropie-ha/retropie-ha"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// SafeName rewrites a device name into a form usable inside topic names and
// unique IDs.
func SafeName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// Device identifies the physical machine all sensors attach to.
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version"`
}

// Origin names the integration that published the discovery config.
type Origin struct {
	Name string `json:"name"`
	SW   string `json:"sw"`
	URL  string `json:"url"`
}

// Availability points a sensor at the retained availability topic.
type Availability struct {
	Topic               string `json:"topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
}

// Sensor is one MQTT discovery config payload.
type Sensor struct {
	Device                 Device         `json:"device"`
	Name                   string         `json:"name"`
	UniqueID               string         `json:"unique_id"`
	ObjectID               string         `json:"object_id"`
	StateTopic             string         `json:"state_topic"`
	ValueTemplate          string         `json:"value_template,omitempty"`
	JSONAttributesTopic    string         `json:"json_attributes_topic,omitempty"`
	JSONAttributesTemplate string         `json:"json_attributes_template,omitempty"`
	UnitOfMeasurement      string         `json:"unit_of_measurement,omitempty"`
	DeviceClass            string         `json:"device_class,omitempty"`
	StateClass             string         `json:"state_class,omitempty"`
	Icon                   string         `json:"icon,omitempty"`
	Availability           []Availability `json:"availability,omitempty"`
	AvailabilityMode       string         `json:"availability_mode,omitempty"`
	EnabledByDefault       bool           `json:"enabled_by_default"`
	Origin                 Origin         `json:"origin"`
}

// Announcement pairs a discovery config topic with its payload.
type Announcement struct {
	Topic  string
	Sensor Sensor
}

// Discovery builds the sensor set for one device.
type Discovery struct {
	deviceName string
	safeName   string
	swVersion  string
	topics     mqtt.Topics
}

// NewDiscovery returns a builder for the given device and topic namespace.
func NewDiscovery(deviceName, swVersion string, topics mqtt.Topics) *Discovery {
	return &Discovery{
		deviceName: deviceName,
		safeName:   SafeName(deviceName),
		swVersion:  swVersion,
		topics:     topics,
	}
}

// ConfigTopic returns the retained discovery topic for one sensor.
func (d *Discovery) ConfigTopic(sensorID string) string {
	return fmt.Sprintf("%s/sensor/retropie_%s/%s/config", DiscoveryPrefix, d.safeName, sensorID)
}

// Announcements returns every sensor config to publish, each retained on its
// ConfigTopic.
func (d *Discovery) Announcements() []Announcement {
	status := d.topics.Status()

	cpuTemp := d.sensor("cpu_temp", "CPU Temperature", status)
	cpuTemp.ValueTemplate = "{{ value_json.cpu_temp }}"
	cpuTemp.UnitOfMeasurement = "°C"
	cpuTemp.DeviceClass = "temperature"
	cpuTemp.StateClass = "measurement"
	cpuTemp.Icon = "mdi:chip"

	gpuTemp := d.sensor("gpu_temp", "GPU Temperature", status)
	gpuTemp.ValueTemplate = "{{ value_json.gpu_temp }}"
	gpuTemp.UnitOfMeasurement = "°C"
	gpuTemp.DeviceClass = "temperature"
	gpuTemp.StateClass = "measurement"
	gpuTemp.Icon = "mdi:gpu"

	gameStatus := d.sensor("game_status", "Game Status", status)
	gameStatus.ValueTemplate = "{{ value_json.current_game | default(value_json.status, true) }}"
	gameStatus.JSONAttributesTopic = d.topics.Event("game-start")
	gameStatus.JSONAttributesTemplate = "{{ {'system': value_json.system | default(''), 'emulator': value_json.emulator | default(''), 'genre': value_json.genre | default(''), 'developer': value_json.developer | default(''), 'publisher': value_json.publisher | default(''), 'rating': value_json.rating | default(''), 'release_date': value_json.release_date | default('')} | tojson }}"
	gameStatus.Icon = "mdi:gamepad-variant"

	memory := d.sensor("memory_usage", "Memory Usage", status)
	memory.ValueTemplate = "{{ (value_json.memory.used_mb / value_json.memory.total_mb * 100) | round(1) }}"
	memory.UnitOfMeasurement = "%"
	memory.StateClass = "measurement"
	memory.Icon = "mdi:memory"

	cpuLoad := d.sensor("cpu_load", "CPU Load", status)
	cpuLoad.ValueTemplate = "{{ value_json.load_avg[0] }}"
	cpuLoad.StateClass = "measurement"
	cpuLoad.Icon = "mdi:chip"

	sensors := []Sensor{cpuTemp, gpuTemp, gameStatus, memory, cpuLoad}
	ids := []string{"cpu_temp", "gpu_temp", "game_status", "memory_usage", "cpu_load"}

	out := make([]Announcement, 0, len(sensors))
	for i, s := range sensors {
		out = append(out, Announcement{Topic: d.ConfigTopic(ids[i]), Sensor: s})
	}
	return out
}

// sensor fills the fields shared by every sensor config.
func (d *Discovery) sensor(id, label, stateTopic string) Sensor {
	uid := fmt.Sprintf("retropie_%s_%s", d.safeName, id)
	return Sensor{
		Device: Device{
			Identifiers:  []string{"retropie_" + d.safeName},
			Name:         "RetroPie " + d.deviceName,
			Model:        deviceModel,
			Manufacturer: deviceManufacturer,
			SWVersion:    d.swVersion,
		},
		Name:       fmt.Sprintf("RetroPie %s %s", d.deviceName, label),
		UniqueID:   uid,
		ObjectID:   uid,
		StateTopic: stateTopic,
		Availability: []Availability{{
			Topic:               d.topics.Availability(),
			PayloadAvailable:    mqtt.PayloadOnline,
			PayloadNotAvailable: mqtt.PayloadOffline,
		}},
		AvailabilityMode: "all",
		EnabledByDefault: true,
		Origin: Origin{
			Name: originName,
			SW:   d.swVersion,
			URL:  originURL,
		},
	}
}
