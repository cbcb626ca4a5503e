// config loads and validates the JSON configuration for a netsim process.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Configurable interface {
	Check() error
}

func LoadConfig[T Configurable](path string) (*T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open configuration file: %v", err)
	}
	defer file.Close()
	var config T
	err = json.NewDecoder(file).Decode(&config)
	if err != nil {
		return nil, fmt.Errorf("could not parse configuration file: %v", err)
	}
	if err := config.Check(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}
	return &config, nil
}

// Config is the configuration for a netsim process: one network registry and
// one chat-hosting server surface.
type Config struct {
	// BaseAddress is the network's address prefix. Node addresses are formed
	// as BaseAddress + "." + nodeNumber.
	BaseAddress string `json:"baseAddress"`
	// Hostname is "localhost" or empty for internet connections.
	Hostname string `json:"hostname"`
	// OperatorPort serves the network registry HTTP API.
	OperatorPort int `json:"operatorPort"`
	// SubscriberPort serves the chat HTTP API.
	SubscriberPort int `json:"subscriberPort"`
	// WebsocketPort serves the chat fan-out websocket.
	WebsocketPort int `json:"websocketPort"`
	// LinkProbeDelayMs is the wait before a link probe reads the node's link
	// state.
	LinkProbeDelayMs int `json:"linkProbeDelayMs"`
	// UsageProbeDelayMs is the wait before a usage probe reads the user's
	// api-usage flag.
	UsageProbeDelayMs int `json:"usageProbeDelayMs"`
}

// Standard returns the default configuration.
func Standard() Config {
	return Config{
		BaseAddress:       "190.180.1",
		Hostname:          "localhost",
		OperatorPort:      4000,
		SubscriberPort:    3000,
		WebsocketPort:     9000,
		LinkProbeDelayMs:  300000,
		UsageProbeDelayMs: 60000,
	}
}
