package source

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// Checksum returns the hex-encoded xxh3 (64-bit) hash of data.
func Checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}

// VerifyChecksum compares data against an expected Checksum value.
func VerifyChecksum(data []byte, expected string) error {
	if actual := Checksum(data); actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}
