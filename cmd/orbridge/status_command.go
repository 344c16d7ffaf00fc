package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"orbridge/internal/api"
	"orbridge/internal/apiclient"
)

func (c *commandContext) apiClient() (*apiclient.Client, string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, "", err
	}
	client, err := apiclient.New(cfg.Paths.APIBind, cfg.Paths.APIToken)
	if err != nil {
		return nil, "", fmt.Errorf("daemon api address: %w", err)
	}
	return client, cfg.Paths.APIBind, nil
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's status and entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, bind, err := ctx.apiClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			status, err := client.Status(cmd.Context())
			if err != nil {
				if apiclient.IsAPIUnavailable(err) {
					fmt.Fprintf(out, "Daemon is not running (no API at %s)\n", bind)
					return nil
				}
				return err
			}
			entities, err := client.Entities(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, struct {
					api.DaemonStatus
					EntityList []api.Entity `json:"entityList"`
				}{status, entities})
			}
			fmt.Fprintf(out, "Daemon running (pid %d) since %s\n", status.PID, status.StartedAt)
			fmt.Fprintf(out, "Database: %s\n", status.DatabasePath)
			fmt.Fprintf(out, "Entries: %d, entities: %d\n", status.Entries, status.Entities)
			printEntities(cmd, entities)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newReloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make the running daemon reload entries and subentries",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, bind, err := ctx.apiClient()
			if err != nil {
				return err
			}
			entities, err := client.Reload(cmd.Context())
			if err != nil {
				if apiclient.IsAPIUnavailable(err) {
					return fmt.Errorf("daemon is not running (no API at %s)", bind)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reloaded %d entities\n", len(entities))
			printEntities(cmd, entities)
			return nil
		},
	}
}

func printEntities(cmd *cobra.Command, entities []api.Entity) {
	if len(entities) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, []string{e.EntityID, e.Title, e.Model, e.EntryTitle})
	}
	fmt.Fprintln(out, renderTable([]string{"Entity", "Title", "Model", "Entry"}, rows, nil, shouldColorize(out)))
}
