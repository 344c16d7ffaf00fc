package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"orbridge/internal/entry"
)

func newCheckKeyCommand(ctx *commandContext) *cobra.Command {
	var entryRef string

	cmd := &cobra.Command{
		Use:   "check-key",
		Short: "Validate an OpenRouter API key and show its usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var key, source string
			if ref := strings.TrimSpace(entryRef); ref != "" {
				err := ctx.withStore(func(store *entry.Store) error {
					found, err := store.FindEntry(cmd.Context(), ref)
					if err != nil {
						return err
					}
					key, source = found.APIKey, "entry "+found.Title
					return nil
				})
				if err != nil {
					return err
				}
			} else {
				if key, err = cfg.RequireAPIKey(); err != nil {
					return err
				}
				source = "configuration"
			}

			client, err := ctx.newClient(key)
			if err != nil {
				return err
			}
			info, err := client.CheckKey(cmd.Context())
			if err != nil {
				return fmt.Errorf("check key from %s: %w", source, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Key from %s is valid\n", source)
			if info.Label != "" {
				fmt.Fprintf(out, "Label: %s\n", info.Label)
			}
			fmt.Fprintf(out, "Usage: %.4f credits\n", info.Usage)
			if info.Limit != nil {
				fmt.Fprintf(out, "Limit: %.4f credits\n", *info.Limit)
			} else {
				fmt.Fprintln(out, "Limit: none")
			}
			fmt.Fprintf(out, "Free tier: %s\n", yesNo(info.IsFreeTier))
			return nil
		},
	}
	cmd.Flags().StringVar(&entryRef, "entry", "", "Check the key stored on this entry (id, id prefix or title)")
	return cmd
}
