// Package identity derives the machine and session identifiers sent with
// license validations and analytics events.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Provider memoises one machine id and one session id per instance
type Provider struct {
	hostname   func() (string, error)
	interfaces func() ([]net.Interface, error)
	logger     *slog.Logger

	mu        sync.Mutex
	machineID string
	sessionID string
}

// NewProvider creates a provider reading the host's name and network interfaces
func NewProvider(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		hostname:   os.Hostname,
		interfaces: net.Interfaces,
		logger:     logger.With(slog.String("component", "identity")),
	}
}

// MachineID returns a stable fingerprint of this machine. When no host
// component can be read, a random id is generated and kept for the
// provider's lifetime.
func (p *Provider) MachineID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.machineID != "" {
		return p.machineID, nil
	}

	components := p.components(ctx)
	if len(components) == 0 {
		id, err := randomID()
		if err != nil {
			return "", fmt.Errorf("failed to generate fallback machine id: %w", err)
		}
		p.logger.WarnContext(ctx, "No host components available, using random machine id")
		p.machineID = id
		return id, nil
	}

	components = append(components, "os="+runtime.GOOS, "arch="+runtime.GOARCH)
	sum := sha256.Sum256([]byte(strings.Join(components, "|")))
	p.machineID = hex.EncodeToString(sum[:])

	p.logger.DebugContext(ctx, "Machine id generated",
		slog.Int("components", len(components)),
		slog.String("machine_id_prefix", p.machineID[:8]),
	)
	return p.machineID, nil
}

// components collects the host name and hardware addresses that feed the fingerprint
func (p *Provider) components(ctx context.Context) []string {
	var components []string

	if host, err := p.hostname(); err != nil {
		p.logger.DebugContext(ctx, "Hostname unavailable", slog.String("error", err.Error()))
	} else if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
		components = append(components, "host="+host)
	}

	ifaces, err := p.interfaces()
	if err != nil {
		p.logger.DebugContext(ctx, "Network interfaces unavailable", slog.String("error", err.Error()))
		return components
	}

	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		mac := iface.HardwareAddr.String()
		if mac == "00:00:00:00:00:00" {
			continue
		}
		macs = append(macs, mac)
	}
	// interface enumeration order is not stable across boots
	sort.Strings(macs)
	for _, mac := range macs {
		components = append(components, "mac="+mac)
	}

	return components
}

// SessionID returns a uuid generated on first use
func (p *Provider) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sessionID == "" {
		p.sessionID = uuid.NewString()
	}
	return p.sessionID
}

func randomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
