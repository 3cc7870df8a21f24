package config

import (
	"fmt"
	"net"
)

const (
	EnvPrefix = "WATCHGATE_"
)

// Listen is a bindable IP/port pair.
type Listen struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

// Addr renders the pair as host:port.
func (l Listen) Addr() string {
	return net.JoinHostPort(l.IP, fmt.Sprintf("%d", l.Port))
}

// Validate checks the pair is bindable.
func (l Listen) Validate() error {
	if net.ParseIP(l.IP) == nil {
		return fmt.Errorf("invalid ip address: %s", l.IP)
	}
	if l.Port <= 0 || l.Port > 65535 {
		return fmt.Errorf("invalid port: %d", l.Port)
	}
	return nil
}
