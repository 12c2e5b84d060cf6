package daemon

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Govanator12/smart-meeting-sign/internal/logger"
)

const (
	baseBackoff = 5 * time.Second
	maxBackoff  = 300 * time.Second

	probeTimeout = 5 * time.Second

	// linkQualityWarnThreshold is the /proc/net/wireless link value below
	// which a warning is logged
	linkQualityWarnThreshold = 30
)

// Prober checks whether the network path to the provider is up
type Prober interface {
	Probe() error
}

// DialProber probes by opening a TCP connection to the provider endpoint
type DialProber struct {
	Addr string
}

func (p DialProber) Probe() error {
	conn, err := net.DialTimeout("tcp", p.Addr, probeTimeout)
	if err != nil {
		return fmt.Errorf("probe of %s failed: %w", p.Addr, err)
	}
	return conn.Close()
}

// Connectivity tracks link state and the reconnect backoff. The backoff
// doubles per consecutive failure from the base up to the ceiling and is
// reset to base only on a successful connect.
type Connectivity struct {
	connected           bool
	consecutiveFailures int
	currentBackoff      time.Duration
}

func NewConnectivity() *Connectivity {
	return &Connectivity{
		currentBackoff: baseBackoff,
	}
}

// Connected reports current link state
func (c *Connectivity) Connected() bool {
	return c.connected
}

// ConsecutiveFailures returns the failure streak length
func (c *Connectivity) ConsecutiveFailures() int {
	return c.consecutiveFailures
}

// Backoff returns the wait before the next reconnect attempt
func (c *Connectivity) Backoff() time.Duration {
	return c.currentBackoff
}

// RecordSuccess marks the link up and resets the backoff to base
func (c *Connectivity) RecordSuccess() {
	c.connected = true
	c.consecutiveFailures = 0
	c.currentBackoff = baseBackoff
}

// RecordFailure marks the link down and returns the wait before the next
// attempt, doubling up to the ceiling.
func (c *Connectivity) RecordFailure() time.Duration {
	c.connected = false
	c.consecutiveFailures++

	wait := c.currentBackoff
	next := c.currentBackoff * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	c.currentBackoff = next
	return wait
}

// checkLinkQuality reads the wireless link quality for iface from
// /proc/net/wireless and logs a warning below the threshold. Wired or
// unreadable systems are skipped silently; signal telemetry is best-effort.
func checkLinkQuality(iface string) {
	if iface == "" {
		return
	}

	data, err := os.ReadFile("/proc/net/wireless")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || !strings.HasPrefix(fields[0], iface) {
			continue
		}
		quality, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			return
		}
		if quality < linkQualityWarnThreshold {
			logger.Warn("wireless link quality low",
				"interface", iface,
				"quality", quality,
				"threshold", linkQualityWarnThreshold)
		} else {
			logger.Debug("wireless link quality", "interface", iface, "quality", quality)
		}
		return
	}
}
