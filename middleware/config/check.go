package config

import (
	"fmt"
	"strconv"
	"strings"
)

func (c Config) Check() error {
	octets := strings.Split(c.BaseAddress, ".")
	if len(octets) < 3 || len(octets) > 4 {
		return fmt.Errorf("BaseAddress must be three or four octets")
	}
	for _, octet := range octets {
		value, err := strconv.Atoi(octet)
		if err != nil || value < 0 || value > 255 {
			return fmt.Errorf("BaseAddress octets must be between 0 and 255")
		}
	}
	for name, port := range map[string]int{
		"OperatorPort":   c.OperatorPort,
		"SubscriberPort": c.SubscriberPort,
		"WebsocketPort":  c.WebsocketPort,
	} {
		if port < 1024 || port > 49151 {
			return fmt.Errorf("%s must be between 1024 and 49151", name)
		}
	}
	if c.OperatorPort == c.SubscriberPort || c.OperatorPort == c.WebsocketPort ||
		c.SubscriberPort == c.WebsocketPort {
		return fmt.Errorf("operator, subscriber and websocket ports must differ")
	}
	if c.LinkProbeDelayMs < 0 || c.UsageProbeDelayMs < 0 {
		return fmt.Errorf("probe delays must not be negative")
	}
	return nil
}
