// Copyright 2016 The PIO Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package devices

// Environment represents measurements from an environmental sensor.
type Environment struct {
	Temperature Celsius
}

// Environmental represents an environmental sensor.
type Environmental interface {
	// Sense returns the value read from the sensor. Unsupported metrics are not
	// modified.
	Sense(env *Environment) error
}
