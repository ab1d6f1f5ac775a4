package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/tradiecrm/internal/store"
)

// seedCmd loads a YAML workspace fixture into the configured store.
var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load a workspace fixture into the store",
	Long: `Create the schema if needed and load a YAML workspace fixture (workspace,
members, glossary, knowledge rules, contacts and deals) into the SQLite store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		fixture, err := store.LoadFixture(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := st.Seed(cmd.Context(), fixture)
		if err != nil {
			return fmt.Errorf("failed to seed store: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(),
			"Seeded workspace %s: %d members, %d glossary items, %d knowledge rules, %d contacts, %d deals\n",
			report.WorkspaceID, report.Members, report.RepairItems, report.KnowledgeRules, report.Contacts, report.Deals)
		return nil
	},
}
