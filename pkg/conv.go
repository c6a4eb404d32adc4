package pkg

import (
	"encoding/binary"
	"fmt"
)

// Uint64ToBytes encodes big endian so byte order matches numeric order in
// key ranges.
func Uint64ToBytes(num uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, num)
	return b
}

func BytesToUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("input byte slice should have length 8, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func BoolToBytes(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

func BytesToBool(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, fmt.Errorf("input byte slice should have length 1")
	}
	if b[0] == 1 {
		return true, nil
	} else if b[0] == 0 {
		return false, nil
	}
	return false, fmt.Errorf("input byte slice should contain 0 or 1")
}
