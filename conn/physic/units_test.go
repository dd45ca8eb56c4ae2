// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package physic

import "testing"

func TestDistance_String(t *testing.T) {
	if s := Distance(10010).String(); s != "10.010µm" {
		t.Fatalf("%#v", s)
	}
	if s := MilliMetre.String(); s != "1mm" {
		t.Fatalf("%#v", s)
	}
	if s := Metre.String(); s != "1m" {
		t.Fatalf("%#v", s)
	}
	if s := (-MilliMetre).String(); s != "-1mm" {
		t.Fatalf("%#v", s)
	}
}

func TestSpeed_String(t *testing.T) {
	if s := MilliMetrePerSecond.String(); s != "1mm/s" {
		t.Fatalf("%#v", s)
	}
	if s := MetrePerSecond.String(); s != "1m/s" {
		t.Fatalf("%#v", s)
	}
	if s := (10 * MetrePerSecond).String(); s != "10m/s" {
		t.Fatalf("%#v", s)
	}
}
