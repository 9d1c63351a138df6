package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/exportappend/internal/importer"
)

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the staging tables an import may target",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if st == nil {
				return &importer.Error{Kind: importer.ErrNotConfigured}
			}
			defer st.Close()

			tables, err := st.ListTables(cmd.Context(), a.cfg.Import.TableSuffix)
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}
