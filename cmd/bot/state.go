package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the persisted announcement state",
}

var stateCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the state document and report what it holds",
	Long: `Loads the state from the configured backend, validates it and prints
a summary. Exits non-zero when the document is malformed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeRepo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer closeRepo()

		st, err := repo.Load(cmd.Context())
		if err != nil {
			return err
		}

		guilds := map[string]bool{}
		for _, s := range st.Subscriptions {
			guilds[s.GuildID] = true
		}
		live := 0
		for _, v := range st.LiveCache {
			if v {
				live++
			}
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "backend:       %s\n", cfg.StoreDriver)
		fmt.Fprintf(out, "subscriptions: %d\n", len(st.Subscriptions))
		fmt.Fprintf(out, "guilds:        %d\n", len(guilds))
		fmt.Fprintf(out, "live:          %d\n", live)
		fmt.Fprintf(out, "pending:       %d\n", len(st.Pending))
		fmt.Fprintf(out, "admin roles:   %d\n", len(st.AdminRoles))
		return nil
	},
}

func init() {
	stateCmd.AddCommand(stateCheckCmd)
}
