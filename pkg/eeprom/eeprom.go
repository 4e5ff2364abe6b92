// Package eeprom emulates the device's configuration EEPROM: IEEE-754
// 32-bit float values at fixed integer addresses, read at boot and
// written when calibration completes.
package eeprom

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/chewxy/math32"
)

// Configuration cell addresses.
const (
	AddrPowerMax = iota
	AddrMotorResistance
	AddrMotorInductance
	AddrRPMMax
	AddrRPMMaxLimit
	AddrRPMMinLimit
	AddrShuntResistance
	AddrPIDP
	AddrPIDI
	AddrDeadZoneWidth
	AddrRekvToSpeedFactor

	// Cells is the size of the emulated page. Leaves headroom for
	// future keys without a format change.
	Cells = 64
)

// Compiled defaults, used when a cell has never been written.
const (
	DefaultPowerMax          = 2000.0 // W
	DefaultMotorResistance   = 2.0    // Ohm
	DefaultMotorInductance   = 0.02   // H
	DefaultRPMMax            = 30000.0
	DefaultRPMMaxLimit       = 30000.0
	DefaultRPMMinLimit       = 5000.0
	DefaultShuntResistance   = 10.0 // mOhm
	DefaultPIDP              = 2.0
	DefaultPIDI              = 1.0
	DefaultDeadZoneWidth     = 0.05
	DefaultRekvToSpeedFactor = 1.0
)

// Store is the persistent float storage the core configures itself from.
type Store interface {
	// ReadFloat returns the value at addr, or def if the cell was
	// never written.
	ReadFloat(addr int, def float32) float32

	// WriteFloat stores a value at addr and persists it.
	WriteFloat(addr int, v float32) error
}

// FileStore persists the cell page to a plain binary file: Cells
// little-endian float32 values. Unwritten cells hold NaN and read back
// as the caller's default.
type FileStore struct {
	path  string
	cells [Cells]float32
}

var _ Store = (*FileStore)(nil)

// OpenFile loads the cell page from path. A missing file is not an
// error: all cells start unwritten, mirroring a blank EEPROM.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	for i := range s.cells {
		s.cells[i] = math32.NaN()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read eeprom file: %w", err)
	}

	for i := 0; i < Cells && (i+1)*4 <= len(data); i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		s.cells[i] = math32.Float32frombits(bits)
	}
	return s, nil
}

// ReadFloat returns the cell value, or def for unwritten (NaN) cells and
// out-of-range addresses.
func (s *FileStore) ReadFloat(addr int, def float32) float32 {
	if addr < 0 || addr >= Cells {
		return def
	}
	v := s.cells[addr]
	if math32.IsNaN(v) {
		return def
	}
	return v
}

// WriteFloat stores a value and rewrites the backing file.
func (s *FileStore) WriteFloat(addr int, v float32) error {
	if addr < 0 || addr >= Cells {
		return fmt.Errorf("eeprom address %d out of range", addr)
	}
	s.cells[addr] = v

	buf := make([]byte, Cells*4)
	for i, c := range s.cells {
		binary.LittleEndian.PutUint32(buf[i*4:], math32.Float32bits(c))
	}
	if err := os.WriteFile(s.path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write eeprom file: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests and the mock device path.
type MemStore struct {
	cells map[int]float32
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{cells: make(map[int]float32)}
}

// ReadFloat returns the stored value, or def if the address was never
// written.
func (s *MemStore) ReadFloat(addr int, def float32) float32 {
	if v, ok := s.cells[addr]; ok {
		return v
	}
	return def
}

// WriteFloat stores a value.
func (s *MemStore) WriteFloat(addr int, v float32) error {
	s.cells[addr] = v
	return nil
}
