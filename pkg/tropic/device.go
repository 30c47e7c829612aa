// Package tropic is the top-level handle for one secure element: it
// owns the transport and protocol layers, the secure session, and the
// typed command surface.
//
// Typical use:
//
//	dev := tropic.NewDevice(p, tropic.Config{})
//	if err := dev.Init(); err != nil { ... }
//	defer dev.Close()
//
//	pub, err := dev.ChipPublicKey()
//	err = dev.StartSession(pairingPriv, 0, pub)
//	echo, err := dev.Ping([]byte("hello"))
//
// A Device is not safe for concurrent use; one goroutine drives one
// chip.
package tropic

import (
	"time"

	"github.com/pion/logging"

	"github.com/avp-protocol/avp-tropic/pkg/crypto"
	"github.com/avp-protocol/avp-tropic/pkg/l1"
	"github.com/avp-protocol/avp-tropic/pkg/l2"
	"github.com/avp-protocol/avp-tropic/pkg/l3"
	"github.com/avp-protocol/avp-tropic/pkg/port"
)

// Config configures a Device.
type Config struct {
	// PollInterval is the delay between response polls.
	PollInterval time.Duration

	// ReadTimeout is the response deadline for ordinary requests.
	ReadTimeout time.Duration

	// HandshakeTimeout is the response deadline for the handshake.
	HandshakeTimeout time.Duration

	// EraseTimeout is the response deadline for firmware bank erase.
	EraseTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Device is the per-chip context.
type Device struct {
	port    port.Port
	bus     *l1.Bus
	link    *l2.Link
	session *l3.Session
	log     logging.LeveledLogger

	// respBuf is the shared I/O buffer for encrypted result frames.
	respBuf [l3.FrameMaxSize]byte
}

// NewDevice creates a Device over p. Call Init before anything else.
func NewDevice(p port.Port, config Config) *Device {
	bus := l1.NewBus(p, l1.Config{
		PollInterval:  config.PollInterval,
		LoggerFactory: config.LoggerFactory,
	})
	link := l2.NewLink(bus, l2.Config{
		ReadTimeout:      config.ReadTimeout,
		HandshakeTimeout: config.HandshakeTimeout,
		EraseTimeout:     config.EraseTimeout,
		LoggerFactory:    config.LoggerFactory,
	})

	d := &Device{
		port:    p,
		bus:     bus,
		link:    link,
		session: l3.NewSession(),
	}
	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("tropic")
	}
	return d
}

// Init probes the chip and, if it still runs the startup firmware,
// reboots it into the application firmware.
//
// Returns ErrFirmwareBootFailed if the application firmware does not
// come up; the Device stays usable for firmware update in that case.
func (d *Device) Init() error {
	mode, err := d.link.ProbeMode()
	if err != nil {
		return err
	}

	if mode.Maintenance() {
		if d.log != nil {
			d.log.Debugf("chip in startup mode, rebooting into application fw")
		}
		if err := d.link.Startup(l2.StartupReboot); err != nil {
			return err
		}
		mode, err = d.link.ProbeMode()
		if err != nil {
			return err
		}
		if mode.Maintenance() {
			return ErrFirmwareBootFailed
		}
	}

	if d.log != nil {
		d.log.Infof("chip up in %v mode", mode)
	}
	return nil
}

// Close releases the Device: session key material and the I/O buffer
// are zeroized and the session forced to Idle. Idempotent; no bus
// traffic.
func (d *Device) Close() error {
	d.session.Invalidate()
	crypto.Memzero(d.respBuf[:])
	d.link.Reset()
	return nil
}

// Reset pulses the chip hardware reset line, when the port has one,
// and drops all host-side protocol state.
func (d *Device) Reset() error {
	r, ok := d.port.(port.Resetter)
	if !ok {
		return ErrResetUnsupported
	}
	if err := r.Reset(); err != nil {
		return err
	}
	d.session.Invalidate()
	d.link.Reset()
	return nil
}

// Mode returns the chip mode snapshot from the most recent response.
func (d *Device) Mode() l2.Mode {
	return d.link.Mode()
}

// SessionState returns the secure session lifecycle state.
func (d *Device) SessionState() l3.State {
	return d.session.State()
}

// SessionCounters returns the command and result frame counters of
// the established session.
func (d *Device) SessionCounters() (cmd, res uint64) {
	return d.session.Counters()
}

// Sleep puts the chip to sleep. The chip drops its session; the host
// session state is invalidated to match.
func (d *Device) Sleep(deep bool) error {
	kind := l2.SleepKindSleep
	if deep {
		kind = l2.SleepKindDeepSleep
	}
	if err := d.link.Sleep(kind); err != nil {
		return err
	}
	d.session.Invalidate()
	return nil
}

// Log reads the RISC-V firmware log.
func (d *Device) Log() (string, error) {
	return d.link.GetLog()
}
