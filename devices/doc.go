// Package devices contains interfaces for classes of devices.
//
// Subpackages contain the concrete implementations. Devices accept port
// interface, constructors return concrete type.
//
// This tree carries no fake-device subpackage.
package devices
