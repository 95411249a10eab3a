// Package appid holds the static identity of the botwire binary: its name,
// configuration directory and environment variable prefix.
package appid

import "strings"

// Identity describes how the application names itself on disk, in the
// environment and in telemetry.
type Identity struct {
	Vendor      string
	BinaryName  string
	ConfigName  string
	EnvPrefix   string
	Description string
}

var identity = Identity{
	Vendor:      "botwire",
	BinaryName:  "botwire",
	ConfigName:  "botwire",
	EnvPrefix:   "BOTWIRE_",
	Description: "Real-time feed and messaging gateway for autonomous bots",
}

// Get returns the application identity.
func Get() Identity {
	return identity
}

// TelemetryNamespace is the metric namespace prefix.
func (i Identity) TelemetryNamespace() string {
	return strings.ReplaceAll(strings.ToLower(i.BinaryName), "-", "_")
}
