package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/config"
)

type Reading struct {
	DeviceID    int64     `json:"device_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
}

type Status struct {
	Timestamp       time.Time `json:"timestamp"`
	SmokeDetector   bool      `json:"smokeDetector"`
	FSS             bool      `json:"fss"`
	EmergencyButton bool      `json:"emergencyButton"`
	EmergencyTemp   bool      `json:"emergencyTemp"`
}

func main() {
	viper.SetDefault("SIM_DEVICES", 3)
	viper.SetDefault("SIM_CONTAINMENT_ID", 1)
	viper.SetDefault("SIM_TICKS", 100)
	viper.SetDefault("SIM_PERIOD", "1s")
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	config.SetupLogging()

	devices := viper.GetInt("SIM_DEVICES")
	containment := viper.GetInt64("SIM_CONTAINMENT_ID")
	period := viper.GetDuration("SIM_PERIOD")

	opts := mqtt.NewClientOptions().AddBroker(config.MQTTBroker()).SetClientID("containment-simulator")
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("mqtt connect")
	}
	defer client.Disconnect(250)

	publish := func(topic string, v any) {
		payload, _ := json.Marshal(v)
		token := client.Publish(topic, config.MQTTQoS(), false, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("publish failed")
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var smoke bool
	for tick := 0; tick < viper.GetInt("SIM_TICKS"); tick++ {
		// Minute-aligned timestamps land inside every schedule window.
		ts := time.Now().UTC().Truncate(time.Minute)
		for id := 1; id <= devices; id++ {
			temp := 24 + rng.NormFloat64()*3
			if rng.Intn(20) == 0 {
				temp += 12
			}
			publish(fmt.Sprintf("dc/containment/%d/device/%d/telemetry", containment, id), Reading{
				DeviceID:    int64(id),
				Timestamp:   ts,
				Temperature: temp,
				Humidity:    45 + rng.Float64()*10,
			})
		}
		if rng.Intn(15) == 0 {
			smoke = !smoke
		}
		publish(fmt.Sprintf("containment/%d/status", containment), Status{Timestamp: time.Now().UTC(), SmokeDetector: smoke})
		time.Sleep(period)
	}
	log.Info().Msg("simulation done")
}
