package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/pipeline"
)

func flowCmd() *cobra.Command {
	fl := &cobra.Command{Use: "flow", Short: "Manage flows"}
	fl.AddCommand(flowCreateCmd())
	fl.AddCommand(flowListCmd())
	fl.AddCommand(flowShowCmd())
	return fl
}

func flowCreateCmd() *cobra.Command {
	var id, name, desc, stagesFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create flow (default stages unless --stages is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stages []domain.Stage
			if stagesFile != "" {
				loaded, err := readStages(stagesFile)
				if err != nil {
					return err
				}
				stages = loaded
			}
			var f domain.Flow
			err := withUpdate(cmd.Context(), true, func(ctx context.Context, e engine.Engine, projectID, actor string) error {
				var err error
				f, err = e.CreateFlow(ctx, engine.FlowCreateOptions{
					ProjectID:   projectID,
					ID:          id,
					Name:        name,
					Description: desc,
					Stages:      stages,
					ActorID:     actor,
				})
				return err
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(f)
			}
			fmt.Printf("created flow %s with %d stages\n", f.ID, len(f.Stages))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "flow id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "flow name")
	cmd.Flags().StringVar(&desc, "description", "", "flow description")
	cmd.Flags().StringVar(&stagesFile, "stages", "", "YAML or JSON file listing stages")
	return cmd
}

// readStages reads a stage list. JSON is valid YAML so one decoder covers both.
func readStages(path string) ([]domain.Stage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		ID                   string `yaml:"id"`
		Key                  string `yaml:"key"`
		Name                 string `yaml:"name"`
		Description          string `yaml:"description"`
		Order                *int   `yaml:"order"`
		SupportsRevision     bool   `yaml:"supportsRevision"`
		ExpectedDurationDays int    `yaml:"expectedDurationDays"`
		Skipped              bool   `yaml:"skipped"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode stages %s: %w", path, err)
	}
	stages := make([]domain.Stage, 0, len(raw))
	for i, r := range raw {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("stage %d: name is required", i)
		}
		stages = append(stages, domain.Stage{
			ID:                   r.ID,
			Key:                  r.Key,
			Name:                 r.Name,
			Description:          r.Description,
			Order:                r.Order,
			SupportsRevision:     r.SupportsRevision,
			ExpectedDurationDays: r.ExpectedDurationDays,
			Skipped:              r.Skipped,
		})
	}
	return stages, nil
}

func flowListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List flows of the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd.Context(), func(e engine.Engine, projectID string) error {
				if _, err := e.State.Project(projectID); err != nil {
					return err
				}
				flows := e.State.FlowsOf(projectID)
				if viper.GetBool("json") {
					return printJSON(flows)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Stages", "Activities"})
				for _, f := range flows {
					tw.AppendRow(table.Row{f.ID, f.Name, len(pipeline.OrderedStages(f)), len(f.ActivityIDs)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func flowShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <flow-id>",
		Short: "Show the ordered stages of a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd.Context(), func(e engine.Engine, projectID string) error {
				ordered, err := e.OrderedStages(projectID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ordered)
				}
				printStages(ordered)
				return nil
			})
		},
	}
}

func printStages(ordered []pipeline.ResolvedStage) {
	tw := newTable()
	tw.AppendHeader(table.Row{"#", "Stage", "Name", "Active", "Teams", "Users"})
	for _, s := range ordered {
		var teamIDs, userIDs []string
		if s.Config != nil {
			teamIDs = s.Config.AssignedTeamIDs
			userIDs = s.Config.AssignedUserIDs
		}
		tw.AppendRow(table.Row{s.Rank, s.UID, s.Name, !s.Skipped, strings.Join(teamIDs, ", "), strings.Join(userIDs, ", ")})
	}
	tw.Render()
}

func stageCmd() *cobra.Command {
	st := &cobra.Command{Use: "stage", Short: "Configure flow stages"}
	st.AddCommand(stageAssignCmd())
	st.AddCommand(stageActiveCmd())
	st.AddCommand(stageTeamsCmd())
	st.AddCommand(stageAccessCmd())
	return st
}

func stageAssignCmd() *cobra.Command {
	var teamIDs, userIDs []string
	cmd := &cobra.Command{
		Use:   "assign <flow-id> <stage>",
		Short: "Replace the teams and users assigned to a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entry domain.StageConfigEntry
			var found bool
			err := withUpdate(cmd.Context(), true, func(ctx context.Context, e engine.Engine, projectID, actor string) error {
				var err error
				entry, found, err = e.AssignTeamsToStage(ctx, projectID, args[0], args[1], engine.StageAssignment{
					AssignedTeamIDs: teamIDs,
					AssignedUserIDs: userIDs,
				}, actor)
				return err
			})
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("stage %s has no configuration entry in flow %s", args[1], args[0])
			}
			return printJSONOrTable(entry)
		},
	}
	cmd.Flags().StringSliceVar(&teamIDs, "team", nil, "assigned team id (repeatable)")
	cmd.Flags().StringSliceVar(&userIDs, "user", nil, "assigned user id (repeatable)")
	return cmd
}

func stageActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active <flow-id> <stage> <true|false>",
		Short: "Activate or deactivate a stage",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var active bool
			switch strings.ToLower(args[2]) {
			case "true", "on", "yes":
				active = true
			case "false", "off", "no":
			default:
				return fmt.Errorf("invalid active value %q", args[2])
			}
			var entry domain.StageConfigEntry
			var found bool
			err := withUpdate(cmd.Context(), true, func(ctx context.Context, e engine.Engine, projectID, actor string) error {
				var err error
				entry, found, err = e.SetStageActive(ctx, projectID, args[0], args[1], active, actor)
				return err
			})
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("stage %s has no configuration entry in flow %s", args[1], args[0])
			}
			return printJSONOrTable(entry)
		},
	}
}

func stageTeamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teams <flow-id> <stage-id>",
		Short: "List the teams that may work on a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd.Context(), func(e engine.Engine, projectID string) error {
				items, err := e.StageTeams(projectID, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printTeams(items)
				return nil
			})
		},
	}
}

func stageAccessCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "access <flow-id> <stage-id>",
		Short: "Report whether a user may work on a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd.Context(), func(e engine.Engine, projectID string) error {
				name := user
				if name == "" {
					name = viper.GetString("actor-id")
				}
				ok, err := e.CanUserWorkOnStage(projectID, args[0], args[1], name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"user": name, "stageId": args[1], "allowed": ok})
				}
				if ok {
					fmt.Printf("%s may work on %s\n", name, args[1])
				} else {
					fmt.Printf("%s may not work on %s\n", name, args[1])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user name (defaults to --actor-id)")
	return cmd
}
