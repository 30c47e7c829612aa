package port

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// Pipe provides an in-memory bus between a host Port and a chip-model
// endpoint, built on pion's test.Bridge. Use it for deterministic tests
// without sockets or hardware.
//
// By default messages are delivered by a background goroutine; disable
// auto-processing for manual control over delivery order.
type Pipe struct {
	bridge *test.Bridge

	mu          sync.Mutex
	closed      bool
	autoProcess bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewPipe creates a pipe with auto-processing enabled.
func NewPipe() *Pipe {
	p := &Pipe{
		bridge:      test.NewBridge(),
		autoProcess: true,
		stopCh:      make(chan struct{}),
	}
	p.startAutoProcess()
	return p
}

// HostPort returns the host side of the pipe as a Port.
func (p *Pipe) HostPort() *BridgePort {
	return newBridgePort(newPacketStream(p.bridge.GetConn0()), nil)
}

// ModelEndpoint returns the chip-model side of the pipe as a byte
// stream carrying bridge messages.
func (p *Pipe) ModelEndpoint() io.ReadWriter {
	return newPacketStream(p.bridge.GetConn1())
}

// SetAutoProcess enables or disables background message delivery.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.autoProcess == enabled {
		return
	}
	p.autoProcess = enabled

	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
	} else {
		close(p.stopCh)
		p.wg.Wait()
	}
}

// Process delivers all queued messages. Only needed with
// auto-processing disabled.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.bridge.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// Close stops delivery and closes both endpoints.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// packetStream adapts a packet-oriented net.Conn into a byte stream.
// Each Read on the underlying conn yields one whole message; leftover
// bytes are buffered so framed readers see a contiguous stream.
type packetStream struct {
	conn net.Conn

	mu  sync.Mutex
	buf []byte
}

func newPacketStream(conn net.Conn) *packetStream {
	return &packetStream{conn: conn}
}

func (s *packetStream) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 {
		scratch := make([]byte, BridgeHeaderSize+BridgeMaxPayload)
		n, err := s.conn.Read(scratch)
		if err != nil {
			return 0, err
		}
		s.buf = append(s.buf, scratch[:n]...)
	}

	n := copy(b, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *packetStream) Write(b []byte) (int, error) {
	return s.conn.Write(b)
}

func (s *packetStream) Close() error {
	return s.conn.Close()
}
