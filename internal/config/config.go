// Package config loads the IPv4 receive-path core's static configuration
// using viper: a root-keyed YAML document, environment overrides via a key
// replacer, defaults applied before validation, and a typed public surface
// the core consumes.
package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/viper"

	"ip4core.dev/ip4core/internal/log"
)

// ServiceConfig is the top-level static configuration for one ip4.Service.
type ServiceConfig struct {
	BucketCount       int                  `mapstructure:"bucket_count"`
	AssembleLifeTicks int                  `mapstructure:"assemble_life_ticks"`
	TimerTickInterval string               `mapstructure:"timer_tick_interval"`
	Receiver          ReceiverConfig       `mapstructure:"receiver"`
	Log               log.LoggerConfig     `mapstructure:"log"`
	Interfaces        []InterfaceSpec      `mapstructure:"interfaces"`
	Children          map[string]ChildSpec `mapstructure:"children"`
}

// ReceiverConfig selects and configures the link-layer frame receiver the
// demo daemon drives the core with.
type ReceiverConfig struct {
	// Kind is "afpacket" or "rawsock".
	Kind         string `mapstructure:"kind"`
	Device       string `mapstructure:"device"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	FanoutID     uint16 `mapstructure:"fanout_id"`
	BPFFilter    string `mapstructure:"bpf_filter"`
	// Address is the rawsock bind address; ignored for afpacket.
	Address string `mapstructure:"address"`
}

// InterfaceSpec is the YAML-facing description of one bound interface.
type InterfaceSpec struct {
	Name        string `mapstructure:"name"`
	Address     string `mapstructure:"address"`
	PromiscRecv bool   `mapstructure:"promisc_recv"`
}

// ChildSpec is the YAML-facing description of one consumer's filter
// configuration, filled in by Load through viper's Unmarshal and converted
// into a typed ip4.ChildConfig by Build.
type ChildSpec struct {
	Interface         string   `mapstructure:"interface"`
	ReceiveDisabled   bool     `mapstructure:"receive_disabled"`
	AcceptPromiscuous bool     `mapstructure:"accept_promiscuous"`
	AcceptIcmpErrors  bool     `mapstructure:"accept_icmp_errors"`
	AcceptAnyProtocol bool     `mapstructure:"accept_any_protocol"`
	Protocol          string   `mapstructure:"protocol"`
	AcceptBroadcast   bool     `mapstructure:"accept_broadcast"`
	UseDefaultAddress bool     `mapstructure:"use_default_address"`
	Groups            []string `mapstructure:"groups"`
	ReceiveTimeout    int      `mapstructure:"receive_timeout"`
}

// configRoot matches the YAML document's root key.
type configRoot struct {
	IP4Core ServiceConfig `mapstructure:"ip4core"`
}

// Load reads path as a viper-managed configuration document rooted at
// `ip4core:`, applying ADR-style env overrides (ip4core.log.level ->
// IP4CORE_LOG_LEVEL) and defaults, then validates the result.
func Load(path string) (*ServiceConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.IP4Core

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ip4core.bucket_count", 127)
	v.SetDefault("ip4core.assemble_life_ticks", 120)
	v.SetDefault("ip4core.timer_tick_interval", "500ms")
	v.SetDefault("ip4core.log.level", "info")
	v.SetDefault("ip4core.log.pattern", "%time [%level] %msg %field")
	v.SetDefault("ip4core.log.time", "2006-01-02T15:04:05.000Z07:00")
	v.SetDefault("ip4core.receiver.kind", "afpacket")
	v.SetDefault("ip4core.receiver.snap_len", 65535)
	v.SetDefault("ip4core.receiver.buffer_size_mb", 8)
	v.SetDefault("ip4core.receiver.timeout_ms", 100)
}

// Validate checks the fields Load cannot default its way around.
func (cfg *ServiceConfig) Validate() error {
	if cfg.BucketCount <= 0 {
		return fmt.Errorf("bucket_count must be positive, got %d", cfg.BucketCount)
	}
	if cfg.AssembleLifeTicks <= 0 {
		return fmt.Errorf("assemble_life_ticks must be positive, got %d", cfg.AssembleLifeTicks)
	}
	switch cfg.Receiver.Kind {
	case "", "afpacket", "rawsock":
		// Load always defaults receiver.kind to "afpacket" before Validate
		// runs; an empty Kind here means a caller built ServiceConfig by
		// hand rather than through Load, and will pick a receiver itself.
	default:
		return fmt.Errorf("receiver.kind must be \"afpacket\" or \"rawsock\", got %q", cfg.Receiver.Kind)
	}
	seen := make(map[string]bool, len(cfg.Interfaces))
	for _, iface := range cfg.Interfaces {
		if iface.Name == "" {
			return fmt.Errorf("interface entry missing name")
		}
		if seen[iface.Name] {
			return fmt.Errorf("duplicate interface name %q", iface.Name)
		}
		seen[iface.Name] = true
		if iface.Address != "" && net.ParseIP(iface.Address) == nil {
			return fmt.Errorf("interface %q: invalid address %q", iface.Name, iface.Address)
		}
	}
	for name, child := range cfg.Children {
		if child.Interface != "" && !seen[child.Interface] {
			return fmt.Errorf("child %q references undeclared interface %q", name, child.Interface)
		}
		for _, g := range child.Groups {
			if net.ParseIP(g) == nil {
				return fmt.Errorf("child %q: invalid multicast group %q", name, g)
			}
		}
	}
	return nil
}
