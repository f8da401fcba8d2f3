// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dalistat/internal/store"
	"github.com/Thermoquad/dalistat/pkg/gear"
)

var forceImport bool

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Inspect and manage the stored network table",
}

var tableShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored network table",
	Args:  cobra.NoArgs,
	RunE:  runTableShow,
}

var tableEraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Delete the stored network table",
	Args:  cobra.NoArgs,
	RunE:  runTableErase,
}

var tableExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the stored table image to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTableExport,
}

var tableImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the stored table with an image file",
	Long: `Replace the stored table with an image written by export.

The image is checked before it is stored: it must have the right length, a
non-empty driver count and a matching checksum. --force stores it anyway.`,
	Args: cobra.ExactArgs(1),
	RunE: runTableImport,
}

func init() {
	rootCmd.AddCommand(tableCmd)
	tableCmd.AddCommand(tableShowCmd, tableEraseCmd, tableExportCmd, tableImportCmd)
	tableImportCmd.Flags().BoolVar(&forceImport, "force", false, "Store an image that fails validation")
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return store.Open(cmd.Context(), store.Config{
		Path:        cfg.Table.Path,
		WALMode:     cfg.Table.WALMode,
		BusyTimeout: cfg.Table.BusyTimeout,
	})
}

func runTableShow(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	image, err := st.Load(ctx)
	if errors.Is(err, store.ErrNoTable) {
		fmt.Printf("No network table stored in %s\n", st.Path())
		return nil
	}
	if err != nil {
		return err
	}

	session, updated, err := st.Session(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Store:   %s\n", st.Path())
	fmt.Printf("Session: %s\n", session)
	fmt.Printf("Updated: %s\n", updated.Format("2006-01-02 15:04:05"))

	var t gear.NetworkTable
	if err := t.Load(image); err != nil {
		fmt.Printf("Image:   \033[1;31mINVALID\033[0m (%v)\n", err)
		return nil
	}
	fmt.Printf("Image:   OK, %d gear addressed\n\n", t.Count)

	drivers, err := st.Drivers(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%-5s %-6s %-6s %-14s %s\n", "INDEX", "SHORT", "FAMILY", "GTIN", "RATED")
	for _, d := range drivers {
		fmt.Printf("%-5d %-6d %-6s %-14s %dW\n", d.Index, d.ShortAddress, d.Family, d.GTIN, d.RatedWattage)
	}
	return nil
}

func runTableErase(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Erase(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("Network table erased from %s\n", st.Path())
	return nil
}

func runTableExport(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	image, err := st.Load(cmd.Context())
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], image, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", args[0], err)
	}
	fmt.Printf("Exported %d bytes to %s\n", len(image), args[0])
	return nil
}

func runTableImport(cmd *cobra.Command, args []string) error {
	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	if err := gear.Validate(image); err != nil && !forceImport {
		return fmt.Errorf("refusing to import %s: %w", args[0], err)
	}

	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Save(cmd.Context(), image, "import:"+args[0]); err != nil {
		return err
	}
	fmt.Printf("Imported %s into %s\n", args[0], st.Path())
	return nil
}
