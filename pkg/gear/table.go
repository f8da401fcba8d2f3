// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gear

import (
	"errors"
	"fmt"
)

// MaxDrivers is the number of gear the table describes. Measurement caches
// have one more slot that takes every index beyond the table.
const MaxDrivers = 4

// Image layout
const (
	ImageLen       = 1 + MaxDrivers*RecordLen + 1
	checksumOffset = ImageLen - 1

	// erasedCount is what an erased flash page reads as
	erasedCount = 0xFF
)

var (
	ErrChecksumMismatch = errors.New("gear: network table checksum mismatch")
	ErrEmptyTable       = errors.New("gear: network table is empty")
	ErrImageLength      = errors.New("gear: network table image has wrong length")
)

// NetworkTable is the list of identified gear
type NetworkTable struct {
	Count    byte
	Drivers  [MaxDrivers]DriverRecord
	Checksum byte
}

// Checksum returns the additive 8-bit sum of the count and record bytes of
// an image.
func Checksum(image []byte) byte {
	var sum byte
	for _, b := range image[:checksumOffset] {
		sum += b
	}
	return sum
}

// Image returns the table serialised with a freshly computed checksum.
func (t *NetworkTable) Image() []byte {
	image := make([]byte, ImageLen)
	image[0] = t.Count
	for i := range t.Drivers {
		t.Drivers[i].marshal(image[1+i*RecordLen : 1+(i+1)*RecordLen])
	}
	image[checksumOffset] = Checksum(image)
	return image
}

// Seal recomputes the stored checksum
func (t *NetworkTable) Seal() {
	t.Checksum = Checksum(t.Image())
}

// Validate checks an image without loading it
func Validate(image []byte) error {
	if len(image) != ImageLen {
		return fmt.Errorf("%w: %d bytes, want %d", ErrImageLength, len(image), ImageLen)
	}
	if image[0] == 0 || image[0] == erasedCount {
		return fmt.Errorf("%w: count 0x%02X", ErrEmptyTable, image[0])
	}
	if sum := Checksum(image); sum != image[checksumOffset] {
		return fmt.Errorf("%w: stored 0x%02X, computed 0x%02X", ErrChecksumMismatch, image[checksumOffset], sum)
	}
	return nil
}

// Load replaces the table with the contents of image. An image that fails
// validation leaves the table zeroed and returns the validation error.
func (t *NetworkTable) Load(image []byte) error {
	*t = NetworkTable{}
	if err := Validate(image); err != nil {
		return err
	}

	t.Count = image[0]
	for i := range t.Drivers {
		t.Drivers[i].unmarshal(image[1+i*RecordLen : 1+(i+1)*RecordLen])
	}
	t.Checksum = image[checksumOffset]
	return nil
}

// Identified returns how many records are in use
func (t *NetworkTable) Identified() int {
	if int(t.Count) > MaxDrivers {
		return MaxDrivers
	}
	return int(t.Count)
}

// Record returns the record at index i, or nil beyond the table
func (t *NetworkTable) Record(i int) *DriverRecord {
	if i < 0 || i >= MaxDrivers {
		return nil
	}
	return &t.Drivers[i]
}

// Flavor returns the family name of the record at index i, or "none"
func (t *NetworkTable) Flavor(i int) string {
	r := t.Record(i)
	if r == nil {
		return "none"
	}
	return r.Family.String()
}

// RatedWattage returns the rated wattage at index i, 0 beyond the table
func (t *NetworkTable) RatedWattage(i int) uint32 {
	r := t.Record(i)
	if r == nil {
		return 0
	}
	return r.RatedWattage
}
