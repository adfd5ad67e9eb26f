package main

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/onicoach/oni/internal/config"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change engine settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/settings")
		if err != nil {
			return err
		}
		var list []struct {
			Key         string `json:"key"`
			Value       string `json:"value"`
			ValueType   string `json:"value_type"`
			Description string `json:"description"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tVALUE\tTYPE\tDESCRIPTION")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Key, s.Value, s.ValueType, s.Description)
		}
		return tw.Flush()
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{"value": args[1], "changed_by": "cli"}
		resp, err := client.put(cmd.Context(), "/settings/"+url.PathEscape(args[0]), body)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("%s = %s", args[0], args[1])
		return nil
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Manage daily commitments",
}

var commitAddTime string

var commitAddCmd = &cobra.Command{
	Use:   "add <task>",
	Short: "Add a recurring daily commitment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if client.userID == "" {
			return fmt.Errorf("user_id is not configured; run: oni config set user_id <id>")
		}

		body := map[string]string{
			"user_id": client.userID,
			"time":    commitAddTime,
			"task":    args[0],
		}
		resp, err := client.post(cmd.Context(), "/commitments", body)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Committed: %s at %s (id %s)", args[0], commitAddTime, result["id"])
		return nil
	},
}

var commitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active commitments",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if client.userID == "" {
			return fmt.Errorf("user_id is not configured; run: oni config set user_id <id>")
		}

		resp, err := client.get(cmd.Context(), "/commitments?user_id="+url.QueryEscape(client.userID))
		if err != nil {
			return err
		}
		var list []struct {
			ID   string `json:"id"`
			Time string `json:"time"`
			Task string `json:"task"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No active commitments.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTIME\tTASK")
		for _, c := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Time, c.Task)
		}
		return tw.Flush()
	},
}

var commitRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Deactivate a commitment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/commitments/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Commitment %s removed", args[0])
		return nil
	},
}

var schedulesState string
var schedulesLimit int

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "List scheduled events",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if schedulesState != "" {
			q.Set("state", schedulesState)
		}
		q.Set("limit", fmt.Sprintf("%d", schedulesLimit))

		resp, err := client.get(cmd.Context(), "/schedules?"+q.Encode())
		if err != nil {
			return err
		}
		var list []struct {
			ID        string `json:"id"`
			EventType string `json:"event_type"`
			RunAt     string `json:"run_at"`
			State     string `json:"state"`
			Comment   string `json:"comment"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No schedules found.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tRUN AT\tSTATE\tCOMMENT")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.EventType, s.RunAt, s.State, s.Comment)
		}
		return tw.Flush()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change local configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tVALUE\tENV VAR")
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", k.Key, k.Value, k.EnvVar)
		}
		return tw.Flush()
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("%s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	commitAddCmd.Flags().StringVar(&commitAddTime, "time", "", "reminder time as HH:MM (24h, UTC)")
	commitAddCmd.MarkFlagRequired("time")
	commitCmd.AddCommand(commitAddCmd)
	commitCmd.AddCommand(commitListCmd)
	commitCmd.AddCommand(commitRemoveCmd)

	schedulesCmd.Flags().StringVar(&schedulesState, "state", "", "filter by state (pending, processing, done, skipped, failed, canceled)")
	schedulesCmd.Flags().IntVar(&schedulesLimit, "limit", 50, "maximum number of rows")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
