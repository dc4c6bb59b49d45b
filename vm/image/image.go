// Package image persists compiled programs as .mcb files: a small
// binary header followed by a CBOR-encoded program body.
package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/mcc/vm"
)

// Magic identifies an mcc bytecode image file.
var Magic = [4]byte{'M', 'C', 'C', 'B'}

// Image format version
// v1: initial format
const Version uint32 = 1

// Header size in bytes: magic(4) + version(4).
const headerSize = 8

var (
	ErrInvalidMagic    = errors.New("invalid magic number: expected MCCB")
	ErrVersionMismatch = errors.New("image version mismatch")
	ErrCorruptImage    = errors.New("corrupt image data")
)

// cborEncMode uses canonical options so the same program always
// serializes to the same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a Program to image bytes.
func Marshal(p *vm.Program) ([]byte, error) {
	body, err := cborEncMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("image: marshal program: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(body))
	buf.Write(Magic[:])
	var ver [4]byte
	binary.LittleEndian.PutUint32(ver[:], Version)
	buf.Write(ver[:])
	buf.Write(body)
	return buf.Bytes(), nil
}

// Unmarshal deserializes a Program from image bytes.
func Unmarshal(data []byte) (*vm.Program, error) {
	if len(data) < headerSize {
		return nil, ErrCorruptImage
	}
	if !bytes.Equal(data[:4], Magic[:]) {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != Version {
		return nil, fmt.Errorf("%w: image is v%d, runtime expects v%d", ErrVersionMismatch, v, Version)
	}

	var p vm.Program
	if err := cbor.Unmarshal(data[headerSize:], &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	if err := validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Write serializes a Program to w.
func Write(w io.Writer, p *vm.Program) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Read deserializes a Program from r.
func Read(r io.Reader) (*vm.Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("image: read: %w", err)
	}
	return Unmarshal(data)
}

// WriteFile serializes a Program to the named file.
func WriteFile(path string, p *vm.Program) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile deserializes a Program from the named file.
func ReadFile(path string) (*vm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: read %s: %w", path, err)
	}
	return Unmarshal(data)
}

// validate rejects images whose decoded fields cannot describe a
// runnable program, so a corrupt file fails at load time rather than
// mid-execution.
func validate(p *vm.Program) error {
	if p.Entry < 0 || p.Entry >= len(p.Code) {
		return fmt.Errorf("%w: entry point %d outside code (%d instructions)", ErrCorruptImage, p.Entry, len(p.Code))
	}
	if p.Halt < 0 || p.Halt >= len(p.Code) {
		return fmt.Errorf("%w: halt address %d outside code (%d instructions)", ErrCorruptImage, p.Halt, len(p.Code))
	}
	for i, in := range p.Code {
		if _, ok := in.Op.Info(); !ok {
			return fmt.Errorf("%w: unknown opcode %d at instruction %d", ErrCorruptImage, byte(in.Op), i)
		}
	}
	return nil
}
