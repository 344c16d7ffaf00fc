package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"orbridge/internal/api"
	"orbridge/internal/attachment"
	"orbridge/internal/dispatch"
	"orbridge/internal/entity"
	"orbridge/internal/entry"
)

// staticEntries serves a single in-memory entry for ad-hoc runs.
type staticEntries []entry.Entry

func (s staticEntries) ListEntries(context.Context) ([]entry.Entry, error) {
	return s, nil
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		entityID       string
		model          string
		prompt         string
		taskName       string
		schemaArg      string
		conversationID string
		attachments    []string
		asJSON         bool
		verbose        bool
	)

	cmd := &cobra.Command{
		Use:   "generate [instructions...]",
		Short: "Run an AI task once, by entity or ad hoc against a model",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			instructions := strings.TrimSpace(strings.Join(args, " "))
			if instructions == "" {
				return fmt.Errorf("instructions are required")
			}
			if (entityID == "") == (model == "") {
				return fmt.Errorf("specify exactly one of --entity or --model")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, closer, err := ctx.logger(cmd, verbose)
			if err != nil {
				return err
			}
			defer closer.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			registry := entity.NewRegistry(entity.SettingsFromConfig(cfg, logger))
			if model != "" {
				key, err := cfg.RequireAPIKey()
				if err != nil {
					return err
				}
				sub := entry.Subentry{Type: entry.TypeAITask, Title: entry.DefaultTitle(model), Model: model, Prompt: prompt}
				if err := registry.Load(runCtx, staticEntries{{ID: "adhoc", Title: "ad hoc", APIKey: key, Subentries: []entry.Subentry{sub}}}); err != nil {
					return err
				}
				entityID = entity.DomainAITask + "." + entry.Slug(sub.Title)
			} else {
				err := ctx.withStore(func(store *entry.Store) error {
					return registry.Load(runCtx, store)
				})
				if err != nil {
					return err
				}
			}
			task, err := registry.AITask(entityID)
			if err != nil {
				return err
			}

			genTask := entity.Task{
				Name:           taskName,
				Instructions:   instructions,
				ConversationID: conversationID,
			}
			for _, path := range attachments {
				genTask.Attachments = append(genTask.Attachments, attachment.Attachment{Path: path})
			}
			if schemaArg != "" {
				schema, err := loadSchema(taskName, schemaArg)
				if err != nil {
					return err
				}
				genTask.Structure = schema
			}

			result, err := task.GenerateData(runCtx, genTask)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.FromGenData(result))
			}
			if result.Structured {
				return writeJSON(cmd, result.Data)
			}
			text, _ := result.Data.(string)
			out := cmd.OutOrStdout()
			fmt.Fprint(out, text)
			if !strings.HasSuffix(text, "\n") {
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&entityID, "entity", "e", "", "AI task entity id, e.g. ai_task.gpt_4o_mini")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Run ad hoc against this model using the configured API key")
	cmd.Flags().StringVar(&prompt, "prompt", "", "System prompt for ad hoc runs")
	cmd.Flags().StringVar(&taskName, "task-name", "", "Task name; also names the output schema")
	cmd.Flags().StringVar(&schemaArg, "schema", "", "Output structure as inline JSON or a path to a JSON file")
	cmd.Flags().StringVar(&conversationID, "conversation-id", "", "Conversation id to send as the request user")
	cmd.Flags().StringArrayVarP(&attachments, "attach", "a", nil, "Image file to attach (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log dispatch progress to stderr")
	return cmd
}

func loadSchema(name, arg string) (*dispatch.Schema, error) {
	data := []byte(strings.TrimSpace(arg))
	if len(data) == 0 || data[0] != '{' {
		raw, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		data = raw
	}
	schema, err := dispatch.ParseSchema(name, data)
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return schema, nil
}
