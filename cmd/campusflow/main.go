// Package main provides the campusflow CLI: validate and run definitions
// locally, and inspect stored executions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/campusflow/campusflow/pkg/actions"
	"github.com/campusflow/campusflow/pkg/actions/defaults"
	"github.com/campusflow/campusflow/pkg/engine"
	"github.com/campusflow/campusflow/pkg/log"
	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/persistence"
	"github.com/campusflow/campusflow/pkg/persistence/file"
	"github.com/campusflow/campusflow/pkg/validation"
)

func main() {
	logger := log.WithModule("cli")

	command := &cli.Command{
		Name:                  "campusflow",
		Usage:                 "Validate and run workflow definitions locally",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Validate a definition file and report every problem",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the definition JSON file",
						Required: true,
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return runValidate(command.String("file"))
				},
			},
			{
				Name:  "run",
				Usage: "Run a definition locally with log-only action backends",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the definition JSON file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "payload",
						Usage: "Trigger payload as inline JSON",
						Value: "{}",
					},
					&cli.StringFlag{
						Name:    "data-dir",
						Usage:   "Directory for the execution store",
						Value:   "./data",
						Sources: cli.EnvVars("DATA_DIR"),
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return runExecute(ctx,
						command.String("file"),
						command.String("payload"),
						command.String("data-dir"))
				},
			},
			{
				Name:  "list",
				Usage: "List stored executions, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data-dir",
						Usage:   "Directory of the execution store",
						Value:   "./data",
						Sources: cli.EnvVars("DATA_DIR"),
					},
					&cli.StringFlag{
						Name:  "definition-id",
						Usage: "Filter by definition id",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status (running, completed, failed, cancelled)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of executions to list",
						Value: 20,
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return runList(ctx,
						command.String("data-dir"),
						command.String("definition-id"),
						command.String("status"),
						command.Int("limit"))
				},
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func loadDefinition(path string) (*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}

	def := &models.WorkflowDefinition{}
	if err := json.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("failed to parse definition file: %w", err)
	}

	return def, nil
}

func newLocalRegistry() *actions.Registry {
	logger := log.WithModule("registry")
	registry := actions.NewRegistry(logger)
	defaults.Register(registry, logger, defaults.Backends{})

	return registry
}

func runValidate(path string) error {
	def, err := loadDefinition(path)
	if err != nil {
		return err
	}

	validator := validation.New(newLocalRegistry())

	problems := validator.Validate(def)
	if len(problems) == 0 {
		fmt.Printf("%s: valid\n", path)

		return nil
	}

	for _, p := range problems {
		fmt.Printf("%s\n", p.Error())
	}

	return fmt.Errorf("%d validation problem(s)", len(problems))
}

func runExecute(ctx context.Context, path, payloadJSON, dataDir string) error {
	def, err := loadDefinition(path)
	if err != nil {
		return err
	}

	payload := map[string]any{}
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	registry := newLocalRegistry()

	validator := validation.New(registry)
	if problems := validator.Validate(def); len(problems) > 0 {
		for _, p := range problems {
			fmt.Printf("%s\n", p.Error())
		}

		return fmt.Errorf("%d validation problem(s)", len(problems))
	}

	persist := file.NewPersistence(dataDir)
	eng := engine.New(log.WithModule("engine"), persist, registry, nil, engine.Config{})

	handle, err := eng.Execute(ctx, def, payload)
	if err != nil {
		return err
	}

	<-handle.Done

	execution, err := persist.ExecutionByID(ctx, handle.ExecutionID)
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(output))

	if execution.Status != models.ExecutionStatusCompleted {
		return fmt.Errorf("execution finished with status %s", execution.Status)
	}

	return nil
}

func runList(ctx context.Context, dataDir, definitionID, statusStr string, limit int) error {
	persist := file.NewPersistence(dataDir)

	opts := persistence.ListExecutionsOptions{
		DefinitionID: definitionID,
		Limit:        limit,
	}

	if statusStr != "" {
		status := models.ExecutionStatus(statusStr)
		opts.Status = &status
	}

	summaries, err := persist.ListExecutions(ctx, opts)
	if err != nil {
		return err
	}

	for _, s := range summaries {
		line, err := json.Marshal(s)
		if err != nil {
			return err
		}

		fmt.Println(string(line))
	}

	fmt.Printf("%d execution(s)\n", len(summaries))

	return nil
}
