package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	reportsUser  string
	reportsLimit int
	reportsJSON  bool
)

// reportsCmd lists past evaluation reports
var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List past evaluation reports for a user",
	RunE:  runReports,
}

func init() {
	reportsCmd.Flags().StringVar(&reportsUser, "user", "", "user id (required)")
	reportsCmd.Flags().IntVar(&reportsLimit, "limit", 20, "maximum reports to show")
	reportsCmd.Flags().BoolVar(&reportsJSON, "json", false, "print full reports as JSON")
	_ = reportsCmd.MarkFlagRequired("user")
}

func runReports(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	reports, err := s.ListReports(reportsUser, reportsLimit)
	if err != nil {
		return err
	}
	if reportsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	if len(reports) == 0 {
		fmt.Println("No reports.")
		return nil
	}
	fmt.Printf("%-38s %-12s %-22s %9s %8s\n", "ID", "WAREHOUSE", "CREATED", "ANOMALIES", "RULES")
	for _, r := range reports {
		fmt.Printf("%-38s %-12s %-22s %9d %8d\n",
			r.ID, r.Tenant, r.CreatedAt.Format("2006-01-02 15:04:05"), len(r.Anomalies), len(r.RulesUsed))
	}
	return nil
}
