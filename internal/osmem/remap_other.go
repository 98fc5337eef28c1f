//go:build !linux

package osmem

import "fmt"

// remapPlatform has no portable equivalent outside Linux; Remap's
// map-copy-unmap fallback in osmem.go handles every other target.
func remapPlatform(old []byte, newGross uintptr) ([]byte, error) {
	return nil, fmt.Errorf("osmem: remap unsupported on this platform")
}
