// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import (
	"context"
	"fmt"
	"io"
	"time"
)

// DefaultTimeout bounds the wait for one response
const DefaultTimeout = 5 * time.Second

// Client sends bench requests to a device and waits for the response
type Client struct {
	rw      io.ReadWriter
	timeout time.Duration
}

// NewClient creates a client on rw. A zero timeout selects DefaultTimeout.
func NewClient(rw io.ReadWriter, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{rw: rw, timeout: timeout}
}

// ReadMemBank reads n locations of bank starting at index
func (c *Client) ReadMemBank(ctx context.Context, addr, bank, index, n byte) ([]byte, error) {
	return c.Do(ctx, Request{Op: OpReadMemBank, Addr: addr, Bank: bank, Index: index, Len: n})
}

// WriteMemBank writes value to n locations of bank starting at index
func (c *Client) WriteMemBank(ctx context.Context, addr, bank, index, n, value byte) error {
	_, err := c.Do(ctx, Request{Op: OpWriteMemBank, Addr: addr, Bank: bank, Index: index, Len: n, Value: value})
	return err
}

// SetDAPC sets the arc power level of addr
func (c *Client) SetDAPC(ctx context.Context, addr, level byte) error {
	_, err := c.Do(ctx, Request{Op: OpSetDAPC, Addr: addr, Level: level})
	return err
}

// Commission addresses and tunes one new gear
func (c *Client) Commission(ctx context.Context, addr, tune byte) error {
	_, err := c.Do(ctx, Request{Op: OpCommission, Addr: addr, Tune: tune})
	return err
}

// Poll waits until some gear answers on the bus
func (c *Client) Poll(ctx context.Context) error {
	_, err := c.Do(ctx, Request{Op: OpPoll})
	return err
}

// Do sends r and returns the response data without the trailing Ack
func (c *Client) Do(ctx context.Context, r Request) ([]byte, error) {
	frame := r.Bytes()
	if _, err := c.rw.Write(frame[:]); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	n := 1
	if r.Op == OpReadMemBank {
		n += int(r.Len)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		buf []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		buf := make([]byte, n)
		_, err := io.ReadFull(c.rw, buf)
		done <- result{buf, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s", ErrTimeout, r.Op)
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("read response: %w", res.err)
		}
		if res.buf[n-1] != AckByte {
			return nil, fmt.Errorf("%w: ends with 0x%02X", ErrBadResponse, res.buf[n-1])
		}
		return res.buf[:n-1], nil
	}
}
