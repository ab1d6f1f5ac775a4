package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/tradiecrm/internal/draft"
	"github.com/aatumaykin/tradiecrm/internal/intake"
)

var (
	parseNow      string
	parseTimezone string
)

type parseOutput struct {
	Matched bool         `json:"matched"`
	Draft   *draft.Draft `json:"draft,omitempty"`
}

// parseCmd runs the one-liner parser and draft builder without a store or model.
var parseCmd = &cobra.Command{
	Use:   "parse <message>",
	Short: "Parse a job one-liner into a draft",
	Long: `Run the deterministic one-liner parser and the draft builder on a message
and print the resulting draft as JSON. No conflict check is performed.`,
	Example: `  tradiecrm parse "Sally at 12 Wyndham St needs her sink fixed tomorrow 2pm, \$200"`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := time.LoadLocation(parseTimezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", parseTimezone, err)
		}
		now := time.Now().In(loc)
		if parseNow != "" {
			t, err := time.ParseInLocation(time.RFC3339, parseNow, loc)
			if err != nil {
				return fmt.Errorf("invalid --now: %w", err)
			}
			now = t.In(loc)
		}

		out := parseOutput{}
		if intent, ok := intake.NewParser().Parse(strings.Join(args, " ")); ok {
			d := draft.NewBuilder(func() time.Time { return now }).Build(intent)
			out.Matched, out.Draft = true, &d
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseNow, "now", "", "Reference time (RFC3339) for relative schedules")
	parseCmd.Flags().StringVar(&parseTimezone, "tz", "Australia/Sydney", "Business timezone")
}
