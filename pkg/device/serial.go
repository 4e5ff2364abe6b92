package device

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"

	"go.bug.st/serial"

	"github.com/itohio/gomsr/pkg/sensors"
)

const (
	// DefaultBaudRate is nominal only: the sampling MCU enumerates as
	// USB CDC and transfers at bus speed regardless.
	DefaultBaudRate = 2000000

	// DefaultBufferSize is the default capacity of the frames channel.
	// Small on purpose: the consumer's gate decisions feed back into
	// the plant, so frames must not queue up far ahead of the core.
	DefaultBufferSize = 4

	// Frame sync bytes. The MCU prefixes every frame so the reader can
	// resynchronise after a dropped byte.
	syncByte0 = 0x5A
	syncByte1 = 0xA5
)

// frameBytes is the wire size of one frame payload.
const frameBytes = sensors.FrameSamples * 2

// Serial reads tick frames from the sampling MCU: two sync bytes
// followed by FrameSamples little-endian uint16 values.
type Serial struct {
	port     string
	baudRate int
	bufSize  int

	conn      serial.Port
	frames    chan Frame
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// NewSerial creates a serial device for the given port.
func NewSerial(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		frames:   make(chan Frame, bufSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Ports returns the available serial port names.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Connect opens the serial port and starts the reader goroutine.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	go d.readFrames()

	return nil
}

// Close stops the reader and closes the port.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("device: close serial port: %v", err)
		}
		d.conn = nil
	}

	d.connected = false

	return nil
}

// Frames returns the channel of tick frames.
func (d *Serial) Frames() <-chan Frame {
	return d.frames
}

// IsConnected reports whether the port is open.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readFrames scans the byte stream for sync markers and decodes frames
// until the context is cancelled or the port errors out. The reader
// owns the frames channel: closing it here, and only here, keeps the
// shutdown free of send-on-closed races.
func (d *Serial) readFrames() {
	defer close(d.frames)

	reader := bufio.NewReaderSize(d.conn, 4*(frameBytes+2))
	payload := make([]byte, frameBytes)

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		if err := syncToFrame(reader); err != nil {
			if err != io.EOF {
				log.Printf("device: frame sync: %v", err)
			}
			return
		}

		if _, err := io.ReadFull(reader, payload); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				log.Printf("device: read frame: %v", err)
			}
			return
		}

		var f Frame
		for i := range f.Samples {
			f.Samples[i] = binary.LittleEndian.Uint16(payload[i*2:])
		}

		select {
		case d.frames <- f:
		case <-d.ctx.Done():
			return
		}
	}
}

// syncToFrame consumes bytes until the two-byte sync marker is seen.
func syncToFrame(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != syncByte0 {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == syncByte1 {
			return nil
		}
	}
}
