package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"warescan/internal/engine"
	"warescan/internal/ingest"
	"warescan/internal/types"
)

var (
	analyzeUser    string
	analyzeTenants []string
	analyzeDefault string
	analyzeJSON    bool
)

// analyzeCmd evaluates one snapshot CSV and prints the report
var analyzeCmd = &cobra.Command{
	Use:   "analyze [snapshot.csv]",
	Short: "Evaluate a snapshot CSV against the active rules",
	Long: `Reads an inventory snapshot, resolves which warehouse it belongs to,
runs every active rule and prints the resulting anomalies.

Example:
  warescan analyze inventory.csv --user u-1 --tenants WH-MAIN,WH-COLD`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeUser, "user", "", "acting user id (required)")
	analyzeCmd.Flags().StringSliceVar(&analyzeTenants, "tenants", nil, "accessible warehouse ids (required)")
	analyzeCmd.Flags().StringVar(&analyzeDefault, "default-tenant", "", "preferred warehouse on resolver ties")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full report as JSON")
	_ = analyzeCmd.MarkFlagRequired("user")
	_ = analyzeCmd.MarkFlagRequired("tenants")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nAnalysis cancelled")
		cancel()
	}()

	parsed, err := ingest.ReadFile(args[0])
	if err != nil {
		return err
	}
	for _, w := range parsed.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	user := types.UserContext{
		UserID:            analyzeUser,
		AccessibleTenants: analyzeTenants,
		DefaultTenant:     analyzeDefault,
	}
	eng := engine.New(s, s, cfg, nil)
	svc := engine.NewService(eng, s, cfg)

	logger.Info("analyzing snapshot",
		zap.String("file", args[0]),
		zap.Int("rows", len(parsed.Rows)),
		zap.String("user", analyzeUser))

	report, err := svc.Analyze(ctx, user, parsed.Rows)
	if err != nil {
		return err
	}

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(report)
	return nil
}

func printReport(report types.Report) {
	fmt.Printf("Warehouse: %s\n", report.Tenant)
	fmt.Printf("Rules run: %d\n", len(report.RulesUsed))
	fmt.Printf("Anomalies: %d\n", len(report.Anomalies))
	for _, w := range report.Warnings {
		fmt.Printf("  ! %s\n", w)
	}
	if len(report.Anomalies) > 0 {
		fmt.Println()
		fmt.Printf("%-10s %-14s %-14s %-26s %s\n", "PRIORITY", "PALLET", "LOCATION", "RULE", "DETAILS")
		for _, a := range report.Anomalies {
			fmt.Printf("%-10s %-14s %-14s %-26s %s\n",
				a.Priority, a.PalletID, a.LocationCode, a.RuleName, detailsSummary(a.Details))
		}
	}

	errored := 0
	for _, st := range report.PerRuleStats {
		if st.Errored {
			errored++
		}
	}
	if errored > 0 {
		fmt.Printf("\n%d rule(s) failed; see per-rule stats in the JSON output.\n", errored)
	}
}

func detailsSummary(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	if kind, ok := details["kind"].(string); ok {
		return kind
	}
	parts := make([]string, 0, len(details))
	for _, key := range []string{"age_hours", "excess", "completion", "zone", "matched_pattern"} {
		if v, ok := details[key]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", key, v))
		}
	}
	return strings.Join(parts, " ")
}
