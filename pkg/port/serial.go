package port

import (
	"fmt"
	"time"

	"github.com/pion/logging"
	"go.bug.st/serial"
)

// DefaultSerialSpeed is the baud rate of the USB bus adapter shipped
// with the devkit.
const DefaultSerialSpeed = 115200

// SerialConfig configures a serial bus bridge.
type SerialConfig struct {
	// Device is the serial device path, e.g. "/dev/ttyACM0".
	Device string

	// Speed is the baud rate. Zero selects DefaultSerialSpeed.
	Speed int

	// ReadTimeout bounds a single read from the adapter. Zero selects
	// one second.
	ReadTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// OpenSerial opens a USB serial bus adapter speaking the bridge
// protocol and returns it as a Port.
func OpenSerial(config SerialConfig) (*BridgePort, error) {
	speed := config.Speed
	if speed == 0 {
		speed = DefaultSerialSpeed
	}

	conn, err := serial.Open(config.Device, &serial.Mode{BaudRate: speed})
	if err != nil {
		return nil, fmt.Errorf("port: open %s: %w", config.Device, err)
	}

	readTimeout := config.ReadTimeout
	if readTimeout == 0 {
		readTimeout = time.Second
	}
	if err := conn.SetReadTimeout(readTimeout); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("port: set read timeout: %w", err)
	}

	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("port-serial")
		log.Debugf("opened %s at %d baud", config.Device, speed)
	}

	return newBridgePort(conn, log), nil
}
