package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ilinovom/stream-announce-bot/internal/model"
)

var probeCmd = &cobra.Command{
	Use:   "probe <usernames...>",
	Short: "Check whether creators are live right now",
	Long: `Runs a single probe against a streaming service and prints the live
creators. Nothing is persisted and nothing is posted.

Examples:
  bot probe --service twitch alice bob
  bot probe --service rumble somechannel`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("service")
		svc, err := model.ParseService(name)
		if err != nil {
			return err
		}
		prober, err := newRegistry(cfg).Get(svc)
		if err != nil {
			return err
		}

		users := make([]string, 0, len(args))
		for _, a := range args {
			users = append(users, model.NormalizeUser(a))
		}
		live := prober.Probe(cmd.Context(), users)

		out := cmd.OutOrStdout()
		for _, u := range users {
			info, ok := live[u]
			if !ok {
				fmt.Fprintf(out, "%s\toffline\n", u)
				continue
			}
			fmt.Fprintf(out, "%s\tlive\t%s\t%s\n", u, info.URL, info.Title)
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().String("service", string(model.ServiceTwitch), "service to probe (twitch, kick, rumble)")
}
