package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"orbridge/internal/services/openrouter"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	var vision, asJSON bool
	var search string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models from the OpenRouter catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.newClient("")
			if err != nil {
				return err
			}
			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}
			models = filterModels(models, vision, search)
			if asJSON {
				return writeJSON(cmd, models)
			}
			out := cmd.OutOrStdout()
			if len(models) == 0 {
				fmt.Fprintln(out, "No matching models")
				return nil
			}
			rows := make([][]string, 0, len(models))
			for _, model := range models {
				rows = append(rows, []string{
					model.ID,
					model.Name,
					strconv.Itoa(model.ContextLength),
					yesNo(model.SupportsImages()),
					yesNo(model.SupportsStructuredOutput()),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Context", "Vision", "Structured"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				shouldColorize(out)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&vision, "vision", false, "Only models that accept image input")
	cmd.Flags().StringVar(&search, "search", "", "Case-insensitive substring filter on id or name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func filterModels(models []openrouter.Model, vision bool, search string) []openrouter.Model {
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]openrouter.Model, 0, len(models))
	for _, model := range models {
		if vision && !model.SupportsImages() {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(model.ID+" "+model.Name), needle) {
			continue
		}
		out = append(out, model)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
