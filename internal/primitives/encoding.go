package primitives

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Canonical encoding primitives shared by every wire-level type in the
// core: fixed-width big-endian integers and length-prefixed variable-length
// byte strings, mirroring wire.readElement/writeElement's style but
// written for the account-model types in internal/types.

// WriteUint64 writes v as 8 big-endian bytes.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint64 reads 8 big-endian bytes into a uint64.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteUint32 writes v as 4 big-endian bytes.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads 4 big-endian bytes into a uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteByte writes a single byte.
func WriteByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// ReadByte reads a single byte.
func ReadByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// maxVarBytesLen guards against maliciously large length prefixes when
// decoding untrusted wire input.
const maxVarBytesLen = 32 * 1024 * 1024

// WriteVarBytes writes a uint32 length prefix followed by data.
func WriteVarBytes(w io.Writer, data []byte) error {
	if err := WriteUint32(w, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadVarBytes reads a length-prefixed byte string.
func ReadVarBytes(r io.Reader) ([]byte, error) {
	length, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if length > maxVarBytesLen {
		return nil, errors.Errorf("var bytes length %d exceeds maximum of %d", length, maxVarBytesLen)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteHash writes a Hash's raw bytes.
func WriteHash(w io.Writer, h Hash) error {
	_, err := w.Write(h[:])
	return err
}

// ReadHash reads a Hash's raw bytes.
func ReadHash(r io.Reader) (Hash, error) {
	var h Hash
	_, err := io.ReadFull(r, h[:])
	return h, err
}

// WriteAddress writes an Address's raw bytes.
func WriteAddress(w io.Writer, a Address) error {
	_, err := w.Write(a[:])
	return err
}

// ReadAddress reads an Address's raw bytes.
func ReadAddress(r io.Reader) (Address, error) {
	var a Address
	_, err := io.ReadFull(r, a[:])
	return a, err
}
