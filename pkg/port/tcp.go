package port

import (
	"fmt"
	"net"
	"time"

	"github.com/pion/logging"
)

// TCPConfig configures a TCP bus bridge.
type TCPConfig struct {
	// Address is the chip simulator endpoint, e.g. "localhost:28992".
	Address string

	// DialTimeout bounds the connection attempt. Zero means no limit.
	DialTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DialTCP connects to a chip simulator speaking the bridge protocol
// over TCP and returns it as a Port.
func DialTCP(config TCPConfig) (*BridgePort, error) {
	conn, err := net.DialTimeout("tcp", config.Address, config.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("port: dial %s: %w", config.Address, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		// One bridge message per segment keeps poll latency low.
		_ = tc.SetNoDelay(true)
	}

	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("port-tcp")
		log.Debugf("connected to %s", config.Address)
	}

	return newBridgePort(conn, log), nil
}
