package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Server     string `json:"server" yaml:"server"`
	Port       int    `json:"port" yaml:"port"`
	Method     string `json:"method" yaml:"method"`
	Password   string `json:"password" yaml:"password"`
	WebSocket  bool   `json:"websocket" yaml:"websocket"`
	WSPath     string `json:"ws_path" yaml:"ws_path"`
	UseTLS     bool   `json:"use_tls" yaml:"use_tls"`
	UDP        bool   `json:"udp" yaml:"udp"`
	UDPPath    string `json:"udp_path" yaml:"udp_path"`
	IsActive   bool   `json:"is_active"`
	ConfigPath string `json:"config_path"`

	// Shadowsocks, applied as an optional encryption wrapper around the
	// tunnel channel; empty SSMethod means no additional encryption.
	SSMethod string `json:"ss_method,omitempty" yaml:"ss_method,omitempty"`
	SSSecret string `json:"ss_secret,omitempty" yaml:"ss_secret,omitempty"`

	Tun TunConfig `json:"tun,omitempty" yaml:"tun,omitempty"`
}

// TunConfig describes the optional TUN virtual interface the client can
// bring up in front of its SOCKS5 listener.
type TunConfig struct {
	Enable   bool   `json:"enable" yaml:"enable"`
	Device   string `json:"device" yaml:"device"`
	Auto     bool   `json:"auto" yaml:"auto"`
	MTU      int    `json:"mtu" yaml:"mtu"`
	OutIface string `json:"out_iface" yaml:"out_iface"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// RelayConfig configures the relay side process: the listener it accepts
// upstream channels on, and the policy knobs for admitting CONNECT/DNSQUERY
// frames.
type RelayConfig struct {
	Listen string `json:"listen" yaml:"listen"`

	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// SSRFProtection gates the host denylist in relaysession; it defaults
	// on and should only be disabled for trusted, closed deployments.
	SSRFProtection bool `json:"ssrf_protection" yaml:"ssrf_protection"`

	// DoHEndpoint is the upstream DNS-over-HTTPS resolver used to answer
	// DNSQUERY frames. Empty disables DoH bridging; DNSQUERY frames then
	// get an ERROR reply.
	DoHEndpoint string `json:"doh_endpoint" yaml:"doh_endpoint"`

	SSMethod string `json:"ss_method,omitempty" yaml:"ss_method,omitempty"`
	SSSecret string `json:"ss_secret,omitempty" yaml:"ss_secret,omitempty"`
}

// DefaultRelayConfig returns the relay's baked-in defaults, overridden by
// whatever a loaded RelayConfig sets explicitly.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Listen:         ":8443",
		DialTimeout:    10 * time.Second,
		SSRFProtection: true,
		DoHEndpoint:    "https://dns.google/dns-query",
	}
}

type GlobalConfig struct {
	Servers   []*ServerConfig `json:"servers"`
	ActiveID  string          `json:"active_id"`
	LocalAddr string          `json:"local_addr"`
	LocalPort int             `json:"local_port"`
	DNS       string          `json:"dns"`
	ConfigDir string          `json:"-"`
}

func (c *ServerConfig) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Password == "" {
		return fmt.Errorf("password is required")
	}
	if c.Method == "" {
		return fmt.Errorf("encryption method is required")
	}
	if c.WebSocket && c.WSPath == "" {
		return fmt.Errorf("websocket path is required for websocket connections")
	}
	return nil
}

func (c *ServerConfig) GetKeyString() string {
	if c.WebSocket {
		protocol := "ws"
		if c.UseTLS {
			protocol = "wss"
		}
		return fmt.Sprintf("%s://%s:%d%s (%s)",
			protocol, c.Server, c.Port, c.WSPath, c.Method)
	}
	return fmt.Sprintf("ss://%s:%s@%s:%d",
		c.Method, c.Password, c.Server, c.Port)
}
