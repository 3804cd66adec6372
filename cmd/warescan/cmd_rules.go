package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"warescan/internal/types"
)

// rulesCmd manages the rule catalog
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage anomaly detection rules",
}

var rulesAddCmd = &cobra.Command{
	Use:   "add [rule.json]",
	Short: "Add a rule from a JSON file",
	Long: `Adds one rule. Rules with an invalid conditions payload are stored
inactive so a typo cannot silently disable an analysis.

Example rule file:
  {
    "name": "stagnant in receiving",
    "rule_type": "STAGNANT_PALLETS",
    "category": "FLOW_TIME",
    "priority": "VERY_HIGH",
    "is_active": true,
    "conditions": {"location_types": ["RECEIVING"], "time_threshold_hours": 6}
  }`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesAdd,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rules",
	RunE:  runRulesList,
}

var rulesActivateCmd = &cobra.Command{
	Use:   "activate [rule-id]",
	Short: "Activate a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setRuleActive(args[0], true) },
}

var rulesDeactivateCmd = &cobra.Command{
	Use:   "deactivate [rule-id]",
	Short: "Deactivate a rule without deleting it",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setRuleActive(args[0], false) },
}

var rulesRevertCmd = &cobra.Command{
	Use:   "revert [rule-id]",
	Short: "Revert a rule's conditions to the previous version",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesRevert,
}

func init() {
	rulesCmd.AddCommand(rulesAddCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesActivateCmd)
	rulesCmd.AddCommand(rulesDeactivateCmd)
	rulesCmd.AddCommand(rulesRevertCmd)
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var r types.Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("failed to parse rule file: %w", err)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.SaveRule(r)
	if err != nil {
		return err
	}
	saved, err := s.GetRule(id)
	if err != nil {
		return err
	}
	if !saved.IsActive && r.IsActive {
		fmt.Printf("Saved rule %s INACTIVE: conditions failed validation\n", id)
		return nil
	}
	fmt.Printf("Saved rule %s (%s, %s)\n", id, saved.Type, saved.Priority)
	return nil
}

func runRulesList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	all, err := s.ListRules()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("No rules.")
		return nil
	}
	fmt.Printf("%-38s %-28s %-10s %-10s %3s %s\n", "ID", "TYPE", "PRIORITY", "CATEGORY", "VER", "ACTIVE")
	for _, r := range all {
		fmt.Printf("%-38s %-28s %-10s %-10s %3d %v\n", r.ID, r.Type, r.Priority, r.Category, r.Version, r.IsActive)
	}
	return nil
}

func setRuleActive(id string, active bool) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SetRuleActive(id, active); err != nil {
		return err
	}
	state := "deactivated"
	if active {
		state = "activated"
	}
	fmt.Printf("Rule %s %s\n", id, state)
	return nil
}

func runRulesRevert(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RevertRule(args[0]); err != nil {
		return err
	}
	r, err := s.GetRule(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Rule %s reverted to version %d\n", args[0], r.Version)
	return nil
}
