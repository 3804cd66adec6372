package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"warescan/internal/types"
)

var (
	locTenant   string
	locType     string
	locCapacity int
	locZone     string
	locPattern  string
	locConfigID string
)

// locationsCmd manages a warehouse's location catalog
var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Manage a warehouse's location catalog",
}

var locationsAddCmd = &cobra.Command{
	Use:   "add [code]",
	Short: "Add or update a physical location",
	Long: `Adds one location to a warehouse's catalog. Codes are canonicalized
on the way in, so "1-a-15c" and "01-A-015-C" are the same slot.

Example:
  warescan locations add RECV-01 --tenant WH-MAIN --type RECEIVING --capacity 10`,
	Args: cobra.ExactArgs(1),
	RunE: runLocationsAdd,
}

var locationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the locations the engine currently sees for a warehouse",
	RunE:  runLocationsList,
}

var locationsDeleteCmd = &cobra.Command{
	Use:   "delete [code]",
	Short: "Delete a location from a warehouse's catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runLocationsDelete,
}

func init() {
	for _, c := range []*cobra.Command{locationsAddCmd, locationsListCmd, locationsDeleteCmd} {
		c.Flags().StringVar(&locTenant, "tenant", "", "warehouse id (required)")
		_ = c.MarkFlagRequired("tenant")
	}
	locationsAddCmd.Flags().StringVar(&locType, "type", "STORAGE", "location type (STORAGE/RECEIVING/STAGING/DOCK/TRANSITIONAL)")
	locationsAddCmd.Flags().IntVar(&locCapacity, "capacity", 1, "pallet capacity")
	locationsAddCmd.Flags().StringVar(&locZone, "zone", "GENERAL", "temperature/handling zone")
	locationsAddCmd.Flags().StringVar(&locPattern, "pattern", "", "optional resolve-time glob pattern")
	locationsAddCmd.Flags().StringVar(&locConfigID, "config-id", "", "bind to a warehouse config")

	locationsCmd.AddCommand(locationsAddCmd)
	locationsCmd.AddCommand(locationsListCmd)
	locationsCmd.AddCommand(locationsDeleteCmd)
}

func runLocationsAdd(cmd *cobra.Command, args []string) error {
	t := types.LocationType(locType)
	if !types.ValidLocationType(t) {
		return fmt.Errorf("unknown location type %q", locType)
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	loc := types.Location{
		Code:        args[0],
		WarehouseID: locTenant,
		ConfigID:    locConfigID,
		Type:        t,
		Capacity:    locCapacity,
		Zone:        locZone,
		Pattern:     locPattern,
		IsActive:    true,
	}
	if err := s.SaveLocation(loc); err != nil {
		return err
	}
	saved, err := s.GetLocation(locTenant, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s (%s, capacity %d, zone %s)\n", saved.Code, saved.Type, saved.Capacity, saved.Zone)
	return nil
}

func runLocationsList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	view, err := s.ViewFor(locTenant, "")
	if err != nil {
		return err
	}
	locs := view.All()
	if len(locs) == 0 {
		fmt.Println("No locations.")
		return nil
	}
	fmt.Printf("%-14s %-14s %8s %-10s %s\n", "CODE", "TYPE", "CAPACITY", "ZONE", "SOURCE")
	for _, l := range locs {
		source := "physical"
		if l.ConfigID != "" && l.Structure != nil {
			source = "virtual"
		}
		fmt.Printf("%-14s %-14s %8d %-10s %s\n", l.Code, l.Type, l.Capacity, l.Zone, source)
	}
	fmt.Printf("\n%d locations (%d storage)\n", view.Len(), view.CountByType(types.LocationStorage))
	return nil
}

func runLocationsDelete(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteLocation(locTenant, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

// warehouseCmd manages warehouse config templates
var warehouseCmd = &cobra.Command{
	Use:   "warehouse",
	Short: "Manage warehouse config templates",
	Long: `A warehouse config describes the physical grid (aisles, racks,
positions, levels) plus special areas. Activating a config makes the
engine see its generated virtual locations and the physical locations
bound to it.`,
}

var warehouseDefineCmd = &cobra.Command{
	Use:   "define [config.json]",
	Short: "Create or update a warehouse config from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runWarehouseDefine,
}

var warehouseShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active config for a warehouse and user",
	RunE:  runWarehouseShow,
}

var warehouseUser string

func init() {
	warehouseShowCmd.Flags().StringVar(&locTenant, "tenant", "", "warehouse id (required)")
	warehouseShowCmd.Flags().StringVar(&warehouseUser, "user", "", "owning user id (required)")
	_ = warehouseShowCmd.MarkFlagRequired("tenant")
	_ = warehouseShowCmd.MarkFlagRequired("user")

	warehouseCmd.AddCommand(warehouseDefineCmd)
	warehouseCmd.AddCommand(warehouseShowCmd)
}

func runWarehouseDefine(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var wc types.WarehouseConfig
	if err := json.Unmarshal(data, &wc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if wc.WarehouseID == "" || wc.UserID == "" {
		return fmt.Errorf("warehouse_id and user_id are required")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.SaveConfig(wc)
	if err != nil {
		return err
	}
	status := "inactive"
	if wc.IsActive {
		status = "active"
	}
	fmt.Printf("Saved config %s for %s (%s)\n", id, wc.WarehouseID, status)
	return nil
}

func runWarehouseShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	wc, err := s.ActiveConfig(locTenant, warehouseUser)
	if err != nil {
		return err
	}
	if wc == nil {
		fmt.Println("No active config; only orphan locations are visible.")
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(wc)
}
