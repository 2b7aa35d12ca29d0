// ABOUTME: mDNS advertisement for the AirCast stream endpoint
// ABOUTME: Announces _aircast._tcp on the LAN so players can find the server
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/hashicorp/mdns"
)

// Config holds advertisement configuration.
type Config struct {
	ServiceName string
	Port        int // WebSocket stream port
}

// Manager owns one mDNS advertisement.
type Manager struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates an advertisement manager.
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{config: config, ctx: ctx, cancel: cancel}
}

// Advertise announces the stream endpoint until Stop is called.
func (m *Manager) Advertise() error {
	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		"_aircast._tcp",
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=/stream"},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("[MDNS] Advertising %s on port %d (_aircast._tcp)", m.config.ServiceName, m.config.Port)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Stop withdraws the advertisement.
func (m *Manager) Stop() {
	m.cancel()
}

// LocalIP returns the first non-loopback IPv4 address, or 127.0.0.1 if
// none is up. Used for the operator-facing startup banner.
func LocalIP() string {
	ips, err := localIPs()
	if err != nil || len(ips) == 0 {
		return "127.0.0.1"
	}
	return ips[0].String()
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
