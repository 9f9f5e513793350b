package config

import (
	"fmt"
	"net"

	"github.com/google/gopacket/layers"

	"ip4core.dev/ip4core/internal/ip4"
)

// protocolByName resolves the handful of transport protocols a child
// configuration is likely to name; Build rejects any other name unless
// AcceptAnyProtocol is set.
var protocolByName = map[string]layers.IPProtocol{
	"icmp": layers.IPProtocolICMPv4,
	"igmp": layers.IPProtocolIGMP,
	"tcp":  layers.IPProtocolTCP,
	"udp":  layers.IPProtocolUDP,
}

// Build converts one ChildSpec, decoded from the YAML config by Load, into the typed ip4.ChildConfig the core operates on.
func (c ChildSpec) Build() (ip4.ChildConfig, error) {
	cfg := ip4.ChildConfig{
		ReceiveDisabled:   c.ReceiveDisabled,
		AcceptPromiscuous: c.AcceptPromiscuous,
		AcceptIcmpErrors:  c.AcceptIcmpErrors,
		AcceptAnyProtocol: c.AcceptAnyProtocol,
		AcceptBroadcast:   c.AcceptBroadcast,
		UseDefaultAddress: c.UseDefaultAddress,
		ReceiveTimeout:    c.ReceiveTimeout,
	}

	if !c.AcceptAnyProtocol {
		proto, ok := protocolByName[c.Protocol]
		if !ok {
			return ip4.ChildConfig{}, fmt.Errorf("unknown protocol %q", c.Protocol)
		}
		cfg.DefaultProtocol = proto
	}

	for _, g := range c.Groups {
		ip := net.ParseIP(g)
		if ip == nil {
			return ip4.ChildConfig{}, fmt.Errorf("invalid multicast group %q", g)
		}
		cfg.Groups = append(cfg.Groups, ip)
	}

	return cfg, nil
}

// BuildInterface converts one InterfaceSpec into an ip4.Interface, leaving
// its Children slice for the caller to populate.
func (i InterfaceSpec) BuildInterface() (*ip4.Interface, error) {
	iface := &ip4.Interface{Name: i.Name, PromiscRecv: i.PromiscRecv}
	if i.Address != "" {
		ip := net.ParseIP(i.Address)
		if ip == nil {
			return nil, fmt.Errorf("interface %q: invalid address %q", i.Name, i.Address)
		}
		iface.Address = ip
		iface.Configured = true
	}
	return iface, nil
}
