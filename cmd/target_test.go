// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"

	"github.com/Thermoquad/dalistat/pkg/dali"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in       string
		wantType dali.AddressType
		wantAddr byte
		wantErr  bool
	}{
		{"0", dali.ShortAddress, 0, false},
		{"63", dali.ShortAddress, 63, false},
		{"0x10", dali.ShortAddress, 16, false},
		{"64", 0, 0, true},
		{"g3", dali.GroupAddress, 3, false},
		{"G15", dali.GroupAddress, 15, false},
		{"g16", 0, 0, true},
		{"all", dali.BroadcastAll, 0, false},
		{"broadcast", dali.BroadcastAll, 0, false},
		{"unaddressed", dali.BroadcastUnaddressed, 0, false},
		{"lamp", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			typ, addr, err := parseTarget(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (typ != tt.wantType || addr != tt.wantAddr) {
				t.Errorf("got %v/%d, want %v/%d", typ, addr, tt.wantType, tt.wantAddr)
			}
		})
	}
}

func TestParseBytes(t *testing.T) {
	got, err := parseBytes("value", []string{"1", "0x2A", "255"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 42 || got[2] != 255 {
		t.Errorf("got % X", got)
	}
	if _, err := parseBytes("value", []string{"256"}); err == nil {
		t.Error("expected error for 256")
	}
}
