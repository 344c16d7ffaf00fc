package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"orbridge/internal/config"
	"orbridge/internal/entry"
	"orbridge/internal/services/openrouter"
)

func newEntryCommand(ctx *commandContext) *cobra.Command {
	entryCmd := &cobra.Command{
		Use:   "entry",
		Short: "Manage OpenRouter config entries and their subentries",
	}
	entryCmd.AddCommand(newEntryAddCommand(ctx))
	entryCmd.AddCommand(newEntryListCommand(ctx))
	entryCmd.AddCommand(newEntryRemoveCommand(ctx))
	entryCmd.AddCommand(newEntrySetKeyCommand(ctx))
	entryCmd.AddCommand(newSubentryCommand(ctx))
	return entryCmd
}

func newEntryAddCommand(ctx *commandContext) *cobra.Command {
	var title, apiKey string
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a config entry holding an OpenRouter API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			key := strings.TrimSpace(apiKey)
			if key == "" {
				if key, err = cfg.RequireAPIKey(); err != nil {
					return err
				}
			}
			if !skipCheck {
				if err := verifyKey(cmd, ctx, key); err != nil {
					return err
				}
			}
			return ctx.withStore(func(store *entry.Store) error {
				created, err := store.AddEntry(cmd.Context(), title, key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added entry %s (%s)\n", created.Title, created.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Entry title (default \"OpenRouter\")")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "OpenRouter API key (default: configured key)")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Store the key without validating it")
	return cmd
}

func newEntrySetKeyCommand(ctx *commandContext) *cobra.Command {
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "set-key <entry> <api-key>",
		Short: "Replace the API key of an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[1])
			if !skipCheck {
				if err := verifyKey(cmd, ctx, key); err != nil {
					return err
				}
			}
			return ctx.withStore(func(store *entry.Store) error {
				found, err := store.FindEntry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := store.UpdateAPIKey(cmd.Context(), found.ID, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated API key for %s\n", found.Title)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Store the key without validating it")
	return cmd
}

func verifyKey(cmd *cobra.Command, ctx *commandContext, key string) error {
	client, err := ctx.newClient(key)
	if err != nil {
		return err
	}
	if _, err := client.CheckKey(cmd.Context()); err != nil {
		return fmt.Errorf("validate api key: %w", err)
	}
	return nil
}

func newEntryListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List config entries and subentries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *entry.Store) error {
				entries, err := store.ListEntries(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					for i := range entries {
						entries[i].APIKey = config.Redact(entries[i].APIKey)
					}
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No entries configured; add one with 'orbridge entry add'")
					return nil
				}
				colorize := shouldColorize(out)
				var entryRows, subRows [][]string
				for _, e := range entries {
					entryRows = append(entryRows, []string{
						e.ID, e.Title, config.Redact(e.APIKey), strconv.Itoa(len(e.Subentries)),
					})
					for _, sub := range e.Subentries {
						subRows = append(subRows, []string{
							sub.ID, e.Title, sub.Type.Domain(), sub.Title, sub.Model, yesNo(strings.TrimSpace(sub.Prompt) != ""),
						})
					}
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Title", "API Key", "Subentries"}, entryRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}, colorize))
				if len(subRows) > 0 {
					fmt.Fprintln(out, renderTable(
						[]string{"Subentry ID", "Entry", "Type", "Title", "Model", "Prompt"}, subRows, nil, colorize))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newEntryRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <entry>",
		Short: "Remove a config entry and its subentries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *entry.Store) error {
				found, err := store.FindEntry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := store.RemoveEntry(cmd.Context(), found.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed entry %s (%d subentries)\n", found.Title, len(found.Subentries))
				return nil
			})
		},
	}
}

func newSubentryCommand(ctx *commandContext) *cobra.Command {
	subCmd := &cobra.Command{
		Use:   "subentry",
		Short: "Manage AI task and conversation subentries",
	}
	subCmd.AddCommand(newSubentryAddCommand(ctx))
	subCmd.AddCommand(newSubentryRemoveCommand(ctx))
	return subCmd
}

func newSubentryAddCommand(ctx *commandContext) *cobra.Command {
	var subType, model, title, prompt string
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "add <entry>",
		Short: "Add an AI task or conversation subentry to an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := entry.ParseSubentryType(subType)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *entry.Store) error {
				found, err := store.FindEntry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !skipCheck {
					catalog, err := lookupModel(cmd, ctx, found.APIKey, model)
					if err != nil {
						return err
					}
					if strings.TrimSpace(title) == "" {
						title = catalog.Name
					}
					if parsed == entry.TypeAITask && !catalog.SupportsImages() {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s does not accept image input; attachments will fail\n", catalog.ID)
					}
				}
				created, err := store.AddSubentry(cmd.Context(), found.ID, entry.Subentry{
					Type:   parsed,
					Title:  title,
					Model:  model,
					Prompt: prompt,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s subentry %s (%s) using %s\n",
					created.Type.Domain(), created.Title, created.ID, created.Model)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&subType, "type", "t", "ai_task", "Subentry type: ai_task or conversation")
	cmd.Flags().StringVarP(&model, "model", "m", "", "OpenRouter model id, e.g. openai/gpt-4o-mini")
	cmd.Flags().StringVar(&title, "title", "", "Subentry title (default: catalog model name)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Optional system prompt")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Do not look the model up in the catalog")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func lookupModel(cmd *cobra.Command, ctx *commandContext, apiKey, modelID string) (openrouter.Model, error) {
	client, err := ctx.newClient(apiKey)
	if err != nil {
		return openrouter.Model{}, err
	}
	models, err := client.ListModels(cmd.Context())
	if err != nil {
		return openrouter.Model{}, fmt.Errorf("list models: %w", err)
	}
	for _, model := range models {
		if model.ID == strings.TrimSpace(modelID) {
			return model, nil
		}
	}
	return openrouter.Model{}, fmt.Errorf("model %q not found in the OpenRouter catalog (use --skip-check to add it anyway)", modelID)
}

func newSubentryRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <subentry-id>",
		Short: "Remove a subentry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *entry.Store) error {
				if err := store.RemoveSubentry(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed subentry %s\n", args[0])
				return nil
			})
		},
	}
}
