package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/pipeline"
)

func activityCmd() *cobra.Command {
	act := &cobra.Command{Use: "activity", Short: "Manage activities"}
	act.AddCommand(activityCreateCmd())
	act.AddCommand(activityListCmd())
	act.AddCommand(activityShowCmd())
	act.AddCommand(activityClaimCmd())
	act.AddCommand(activityUnclaimCmd())
	act.AddCommand(activityCompleteCmd())
	return act
}

func activityCreateCmd() *cobra.Command {
	var id, title, deliverable, stageID string
	cmd := &cobra.Command{
		Use:   "create <flow-id>",
		Short: "Create activity on the first active stage (or --stage)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a domain.Activity
			err := withUpdate(cmd.Context(), true, func(ctx context.Context, e engine.Engine, projectID, actor string) error {
				var err error
				a, err = e.CreateActivity(ctx, engine.ActivityCreateOptions{
					ProjectID:   projectID,
					FlowID:      args[0],
					ID:          id,
					Title:       title,
					Deliverable: deliverable,
					StageID:     stageID,
					ActorID:     actor,
				})
				return err
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(a)
			}
			fmt.Printf("created activity %s on stage %s\n", a.ID, a.CurrentStageID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "activity id (generated when empty)")
	cmd.Flags().StringVar(&title, "title", "", "activity title")
	cmd.Flags().StringVar(&deliverable, "deliverable", "", "expected deliverable")
	cmd.Flags().StringVar(&stageID, "stage", "", "initial stage id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func activityListCmd() *cobra.Command {
	var stageID string
	cmd := &cobra.Command{
		Use:   "list <flow-id>",
		Short: "List activities of a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd.Context(), func(e engine.Engine, projectID string) error {
				_, flow, err := e.State.ProjectFlow(projectID, args[0])
				if err != nil {
					return err
				}
				ordered := pipeline.OrderedStages(flow)
				var items []domain.Activity
				for _, a := range e.State.ActivitiesOf(flow.ID) {
					if stageID != "" && !pipeline.ActivityOnStage(a, ordered, stageID) {
						continue
					}
					items = append(items, a)
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Stage", "Claimed By", "Priority", "Created", "Done"})
				for _, a := range items {
					stage := stageLabel(ordered, pipeline.ActivityStageID(a, ordered))
					open, _ := a.OpenEntry()
					tw.AppendRow(table.Row{a.ID, a.Title, stage, open.ClaimedBy, open.Priority, formatTS(a.CreatedAt), formatTSPtr(a.CompletedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stageID, "stage", "", "only activities on this stage")
	return cmd
}

func activityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <flow-id> <activity-id>",
		Short: "Show an activity with its stage history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd.Context(), func(e engine.Engine, projectID string) error {
				flow, a, err := e.State.FlowActivity(projectID, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				ordered := pipeline.OrderedStages(flow)
				fmt.Printf("%s: %s\n", a.ID, a.Title)
				fmt.Println("Stage:", stageLabel(ordered, pipeline.ActivityStageID(a, ordered)))
				if a.Deliverable != "" {
					fmt.Println("Deliverable:", a.Deliverable)
				}
				tw := newTable()
				tw.SetTitle("Stage history")
				tw.AppendHeader(table.Row{"Stage", "Entered", "Claimed By", "Completed", "Skipped", "Exited"})
				for _, h := range a.StageHistory {
					tw.AppendRow(table.Row{stageLabel(ordered, h.StageID), formatTS(h.EnteredAt), h.ClaimedBy, formatTSPtr(h.CompletedAt), formatTSPtr(h.SkippedAt), formatTSPtr(h.ExitedAt)})
				}
				tw.Render()
				for _, line := range a.History.Items() {
					fmt.Printf("  %s  %s\n", formatTS(line.Timestamp), line.Text)
				}
				return nil
			})
		},
	}
}

func stageLabel(ordered []pipeline.ResolvedStage, ref string) string {
	if rs, ok := pipeline.FindStage(ordered, ref); ok && rs.Name != "" {
		return rs.Name
	}
	return ref
}

func activityClaimCmd() *cobra.Command {
	var priority string
	cmd := &cobra.Command{
		Use:   "claim <flow-id> <activity-id>",
		Short: "Claim the current stage of an activity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var claimed bool
			var a domain.Activity
			err := withUpdate(cmd.Context(), true, func(ctx context.Context, e engine.Engine, projectID, actor string) error {
				var err error
				claimed, err = e.ClaimActivity(ctx, projectID, args[0], args[1], priority, actor)
				a = e.State.Activities[args[1]]
				return err
			})
			if err != nil {
				return err
			}
			latest, _ := a.LatestEntry()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"claimed": claimed, "claimedBy": latest.ClaimedBy})
			}
			if !claimed {
				if latest.ClaimedBy != "" {
					return fmt.Errorf("activity %s is claimed by %s", a.ID, latest.ClaimedBy)
				}
				return fmt.Errorf("activity %s could not be claimed", args[1])
			}
			fmt.Printf("claimed %s on stage %s\n", a.ID, a.CurrentStageID)
			return nil
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "", "claim priority")
	return cmd
}

func activityUnclaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unclaim <flow-id> <activity-id>",
		Short: "Release the claim on the current stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var released bool
			err := withUpdate(cmd.Context(), true, func(ctx context.Context, e engine.Engine, projectID, actor string) error {
				var err error
				released, err = e.UnclaimActivity(ctx, projectID, args[0], args[1], actor)
				return err
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"released": released})
			}
			if released {
				fmt.Println("released", args[1])
			} else {
				fmt.Println("nothing to release on", args[1])
			}
			return nil
		},
	}
}

func activityCompleteCmd() *cobra.Command {
	var opts engine.CompleteOptions
	cmd := &cobra.Command{
		Use:   "complete <flow-id> <activity-id>",
		Short: "Complete (or skip) the current stage and advance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var next string
			var a domain.Activity
			err := withUpdate(cmd.Context(), true, func(ctx context.Context, e engine.Engine, projectID, actor string) error {
				var err error
				next, err = e.CompleteActivity(ctx, projectID, args[0], args[1], opts, actor)
				a = e.State.Activities[args[1]]
				return err
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"nextStageId": next, "finished": a.CompletedAt != nil})
			}
			switch {
			case a.CompletedAt != nil:
				fmt.Printf("%s finished the flow\n", a.ID)
			case next != "":
				fmt.Printf("%s moved to %s\n", a.ID, next)
			default:
				fmt.Printf("%s stays on %s\n", a.ID, a.CurrentStageID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.SkipStage, "skip", false, "mark the stage skipped instead of completed")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note appended to the stage log")
	return cmd
}
