// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2ctest

import "testing"

func TestPlayback(t *testing.T) {
	p := Playback{}
	if s := p.String(); s != "playback" {
		t.Fatal(s)
	}
	if err := p.Speed(-100); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPlayback_Close_notEmpty(t *testing.T) {
	p := Playback{Ops: []IO{{Write: []byte{10}}}}
	if err := p.Close(); err == nil {
		t.Fatal("expected error, Ops is not empty")
	}
}

func TestPlayback_Tx(t *testing.T) {
	p := Playback{
		Ops: []IO{
			{
				Addr:  23,
				Write: []byte{10},
				Read:  []byte{12},
			},
		},
	}
	if p.Tx(23, nil, nil) == nil {
		t.Fatal("missing read and write")
	}
	v := [1]byte{}
	if p.Tx(42, []byte{10}, v[:]) == nil {
		t.Fatal("invalid address")
	}
	if p.Tx(23, []byte{10}, make([]byte, 2)) == nil {
		t.Fatal("invalid read size")
	}
	if err := p.Tx(23, []byte{10}, v[:]); err != nil {
		t.Fatal(err)
	}
	if v[0] != 12 {
		t.Fatalf("expected 12, got %v", v)
	}
	if err := p.Tx(23, []byte{10}, v[:]); err == nil {
		t.Fatal("Playback.Ops is empty")
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}
