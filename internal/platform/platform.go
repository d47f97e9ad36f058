// Package platform reports the host platform name sent back on the liveness route.
package platform

import "runtime"

// Name maps a GOOS identifier to the platform name test clients expect.
// Unknown identifiers are returned unchanged.
func Name(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin", "ios":
		return "macOS"
	default:
		return goos
	}
}

// Current returns Name for the running binary.
func Current() string {
	return Name(runtime.GOOS)
}
