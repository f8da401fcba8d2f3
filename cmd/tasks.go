// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/dalistat/internal/publish"
	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
)

var skipIdentify bool

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Assign short addresses and identify every gear on the bus",
	Long: `Run the addressing sequence followed by identification.

Every gear on the bus is given a new short address in order of its random
address. Identification then reads memory bank 0 of each gear, classifies
it by GTIN and reads its telemetry units. The resulting network table is
printed and saved to the table store.`,
	Args: cobra.NoArgs,
	RunE: runAddress,
}

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Identify already addressed gear and save the network table",
	Args:  cobra.NoArgs,
	RunE:  runIdentify,
}

var dapcCmd = &cobra.Command{
	Use:   "dapc <addr> <level>",
	Short: "Set the arc power level of a gear, group or the whole bus",
	Long: `Send one direct arc power control frame.

<addr> is a short address (0-63), a group (g0-g15), "all" or "unaddressed".
<level> is 0-254; 255 stops any fade without changing the level.`,
	Args: cobra.ExactArgs(2),
	RunE: runDAPC,
}

var readMBCmd = &cobra.Command{
	Use:   "read_mb <addr> <bank> <index> <len>",
	Short: "Read memory bank locations",
	Args:  cobra.ExactArgs(4),
	RunE:  runReadMB,
}

var writeMBCmd = &cobra.Command{
	Use:   "write_mb <addr> <bank> <index> <bytes...>",
	Short: "Write memory bank locations",
	Long: `Unlock the memory bank, write the given bytes starting at <index> and
lock it again. Every byte is verified by the gear's reply.`,
	Args: cobra.MinimumNArgs(4),
	RunE: runWriteMB,
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Wait until a control gear answers on the bus",
	Args:  cobra.NoArgs,
	RunE:  runPoll,
}

var commissionCmd = &cobra.Command{
	Use:   "commission <addr> <tune>",
	Short: "Bring a new gear into service",
	Long: `Program a short address into the only gear on the bus and store the tune
byte at bank 2 location 3. Any running task is interrupted and started again
afterwards.`,
	Args: cobra.ExactArgs(2),
	RunE: runCommission,
}

var measureCmd = &cobra.Command{
	Use:   "measure [index]",
	Short: "Read power, energy and diagnostics of identified drivers",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMeasure,
}

func init() {
	rootCmd.AddCommand(addressCmd, identifyCmd, dapcCmd, readMBCmd, writeMBCmd, pollCmd, commissionCmd, measureCmd)
	addressCmd.Flags().BoolVar(&skipIdentify, "skip-identify", false, "Only assign short addresses")
}

func runAddress(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Dalistat - Address\n")
	fmt.Printf("Bus: %s\n\n", s.info)

	start := time.Now()
	r, err := s.run(cmd.Context(), &scheduler.Address{})
	if err != nil && r.Count == 0 {
		return fmt.Errorf("addressing failed: %w", err)
	}
	if err != nil {
		fmt.Printf("WARNING: %v\n", err)
	}
	fmt.Printf("Addressed %d gear in %s\n", r.Count, time.Since(start).Round(time.Millisecond))

	if skipIdentify {
		return nil
	}
	return identify(cmd, s)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()
	return identify(cmd, s)
}

func identify(cmd *cobra.Command, s *session) error {
	r, err := s.run(cmd.Context(), &scheduler.Identify{})
	if err != nil {
		fmt.Printf("WARNING: %v\n", err)
	}
	fmt.Printf("Identified %d driver(s)\n\n", r.Count)
	printTable(s.sched)

	sessionID := uuid.NewString()
	if err := s.store.Save(cmd.Context(), s.sched.TableImage(), sessionID); err != nil {
		return fmt.Errorf("failed to save network table: %w", err)
	}
	fmt.Printf("\nSaved to %s (session %s)\n", s.store.Path(), sessionID)
	return nil
}

// printTable lists the identified drivers
func printTable(sched *scheduler.Scheduler) {
	t := sched.Table()
	fmt.Printf("%-5s %-6s %-6s %-14s %-8s %s\n", "INDEX", "SHORT", "FAMILY", "GTIN", "RATED", "UNITS (P/E)")
	for i := 0; i < t.Identified(); i++ {
		rec := t.Record(i)
		fmt.Printf("%-5d %-6d %-6s %-14s %-8s %g/%g\n",
			i, rec.ShortAddress, rec.Family, rec.Bank0.GTIN,
			fmt.Sprintf("%dW", rec.RatedWattage), rec.PowerUnit, rec.EnergyUnit)
	}
	if int(t.Count) > t.Identified() {
		fmt.Printf("(%d more gear addressed but not tracked)\n", int(t.Count)-t.Identified())
	}
}

func runDAPC(cmd *cobra.Command, args []string) error {
	addrType, addr, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	level, err := parseByte("level", args[1])
	if err != nil {
		return err
	}

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.run(cmd.Context(), &scheduler.SetLevel{AddrType: addrType, Addr: addr, Level: level}); err != nil {
		return err
	}
	fmt.Printf("DAPC %s level=%s\n", dali.FormatAddress(addrType, addr), dali.FormatLevel(level))
	return nil
}

func runReadMB(cmd *cobra.Command, args []string) error {
	addrType, addr, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	vals, err := parseBytes("bank, index or length", args[1:])
	if err != nil {
		return err
	}

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.run(cmd.Context(), &scheduler.ReadMemoryBank{
		AddrType: addrType, Addr: addr, Bank: vals[0], Offset: vals[1], Len: vals[2],
	})
	fmt.Printf("Bank %d from %d, %d of %d bytes:\n", vals[0], vals[1], len(r.Data), vals[2])
	if len(r.Data) > 0 {
		fmt.Print(hex.Dump(r.Data))
	}
	return err
}

func runWriteMB(cmd *cobra.Command, args []string) error {
	addrType, addr, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	loc, err := parseBytes("bank or index", args[1:3])
	if err != nil {
		return err
	}
	data, err := parseBytes("value", args[3:])
	if err != nil {
		return err
	}

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.run(cmd.Context(), &scheduler.WriteMemoryBank{
		AddrType: addrType, Addr: addr, Bank: loc[0], Offset: loc[1], Data: data,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d byte(s) to bank %d from %d\n", r.Count, loc[0], loc[1])
	return nil
}

func runPoll(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Waiting for control gear on %s...\n", s.info)
	start := time.Now()
	if _, err := s.run(cmd.Context(), &scheduler.PollForControlGear{}); err != nil {
		return err
	}
	fmt.Printf("Control gear present after %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runCommission(cmd *cobra.Command, args []string) error {
	addr, err := parseByte("address", args[0])
	if err != nil {
		return err
	}
	if addr > dali.MaxShortAddress {
		return fmt.Errorf("short address %d out of range", addr)
	}
	tune, err := parseByte("tune", args[1])
	if err != nil {
		return err
	}

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.run(cmd.Context(), &scheduler.Commission{Addr: addr, Tune: tune})
	if err != nil {
		return err
	}
	fmt.Printf("Commissioned gear at short address %d (tune 0x%02X)\n", r.Value, tune)
	return nil
}

func runMeasure(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	indices := make([]int, 0, s.sched.Drivers())
	if len(args) == 1 {
		i, err := parseByte("index", args[0])
		if err != nil {
			return err
		}
		indices = append(indices, int(i))
	} else {
		for i := 0; i < s.sched.Drivers(); i++ {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		return fmt.Errorf("no identified drivers, run address first")
	}

	for _, i := range indices {
		for _, t := range []scheduler.Task{
			&scheduler.GetPower{Index: i},
			&scheduler.GetEnergy{Index: i},
			&scheduler.GetOutputVoltage{Index: i},
			&scheduler.GetOutputCurrent{Index: i},
			&scheduler.GetGearTemperature{Index: i},
		} {
			if _, err := s.run(cmd.Context(), t); err != nil {
				fmt.Printf("driver %d: %s failed: %v\n", i, t.Kind(), err)
			}
		}
		printMeasurement(publish.Snapshot(s.sched, i, time.Now()))
	}
	return nil
}

func printMeasurement(m publish.Measurement) {
	power := "n/a"
	if m.HasPower() {
		power = fmt.Sprintf("%.1f W", m.PowerWatts)
	}
	fields := []string{
		fmt.Sprintf("power=%s", power),
		fmt.Sprintf("energy=%d", m.Energy),
		fmt.Sprintf("voltage=%d", m.Voltage),
		fmt.Sprintf("current=%d", m.Current),
		fmt.Sprintf("temperature=%d", m.Temperature),
	}
	fmt.Printf("Driver %d (%s): %s\n", m.Index, m.Family, strings.Join(fields, " "))
}
