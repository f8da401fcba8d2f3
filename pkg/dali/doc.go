// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dali builds DALI forward frames, defines the bus transport
// contract and provides the Link that queues frames and decodes replies.
//
// Frames are built per transmission mode. Every mode has a fixed list of
// commands it accepts; the protocol decides the mode, not the caller. A
// command outside the list for its mode is not sent.
package dali
