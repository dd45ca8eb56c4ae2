// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package i2c defines an I²C bus.
//
// It includes an adapter to directly address an I²C device on a I²C bus
// without having to continuously specify the address when doing I/O.
package i2c

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Bus defines the interface a concrete I²C driver must implement.
//
// This interface is consummed by a device driver for a device sitting on a bus.
type Bus interface {
	fmt.Stringer
	Tx(addr uint16, w, r []byte) error
	// Speed changes the bus speed, if supported.
	Speed(hz int64) error
}

// BusCloser is an I²C bus that can be closed.
//
// This interface is meant to be handled by the application.
type BusCloser interface {
	io.Closer
	Bus
}

// Dev is a device on a I²C bus.
//
// It saves from repeatedly specifying the device address.
type Dev struct {
	Bus  Bus
	Addr uint16
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s(%d)", d.Bus, d.Addr)
}

// Tx does a transaction by adding the device's address to each command.
//
// It's a wrapper for Bus.Tx().
func (d *Dev) Tx(w, r []byte) error {
	return d.Bus.Tx(d.Addr, w, r)
}

// Write writes to the I²C bus without reading, implementing io.Writer.
//
// It's a wrapper for Tx()
func (d *Dev) Write(b []byte) (int, error) {
	if err := d.Tx(b, nil); err != nil {
		return 0, err
	}
	return len(b), nil
}

//

// DevReg8 is a Dev that exposes memory mapped registers in a 8bit address
// space.
type DevReg8 struct {
	Dev
	// Order specifies the binary encoding of words. It is expected to be either
	// binary.BigEndian or binary.LittleEndian.
	Order binary.ByteOrder
}

// ReadRegUint8 reads a 8 bit register.
func (d *DevReg8) ReadRegUint8(reg uint8) (uint8, error) {
	var v [1]uint8
	err := d.Tx([]byte{reg}, v[:])
	return v[0], err
}

// ReadRegUint16 reads a 16 bit register.
func (d *DevReg8) ReadRegUint16(reg uint8) (uint16, error) {
	if d.Order == nil {
		return 0, errors.New("i2c: don't know if big or little endian")
	}
	var v [2]byte
	err := d.Tx([]byte{reg}, v[:])
	return d.Order.Uint16(v[:]), err
}

// ReadRegUint32 reads a 32 bit register.
func (d *DevReg8) ReadRegUint32(reg uint8) (uint32, error) {
	if d.Order == nil {
		return 0, errors.New("i2c: don't know if big or little endian")
	}
	var v [4]byte
	err := d.Tx([]byte{reg}, v[:])
	return d.Order.Uint32(v[:]), err
}

// ReadRegUint64 reads a 64 bit register.
func (d *DevReg8) ReadRegUint64(reg uint8) (uint64, error) {
	if d.Order == nil {
		return 0, errors.New("i2c: don't know if big or little endian")
	}
	var v [8]byte
	err := d.Tx([]byte{reg}, v[:])
	return d.Order.Uint64(v[:]), err
}

// WriteRegUint8 writes a 8 bit register.
func (d *DevReg8) WriteRegUint8(reg uint8, v uint8) error {
	return d.Tx([]byte{reg, v}, nil)
}

// WriteRegUint16 writes a 16 bit register.
func (d *DevReg8) WriteRegUint16(reg uint8, v uint16) error {
	if d.Order == nil {
		return errors.New("i2c: don't know if big or little endian")
	}
	var a [3]byte
	a[0] = reg
	d.Order.PutUint16(a[1:], v)
	return d.Tx(a[:], nil)
}

// WriteRegUint32 writes a 32 bit register.
func (d *DevReg8) WriteRegUint32(reg uint8, v uint32) error {
	if d.Order == nil {
		return errors.New("i2c: don't know if big or little endian")
	}
	var a [5]byte
	a[0] = reg
	d.Order.PutUint32(a[1:], v)
	return d.Tx(a[:], nil)
}

// WriteRegUint64 writes a 64 bit register.
func (d *DevReg8) WriteRegUint64(reg uint8, v uint64) error {
	if d.Order == nil {
		return errors.New("i2c: don't know if big or little endian")
	}
	var a [9]byte
	a[0] = reg
	d.Order.PutUint64(a[1:], v)
	return d.Tx(a[:], nil)
}
