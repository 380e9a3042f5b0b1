package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageline/internal/app"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/teams"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			var p domain.Project
			err := withUpdate(cmd.Context(), false, func(ctx context.Context, e engine.Engine, _ string, actor string) error {
				var err error
				p, err = e.CreateProject(ctx, engine.ProjectCreateOptions{ID: id, Name: name, ActorID: actor})
				return err
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(p)
			}
			fmt.Println("created project", p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Updated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the project with its users, teams and flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd.Context(), func(e engine.Engine, projectID string) error {
				p, err := e.State.Project(projectID)
				if err != nil {
					return err
				}
				flows := e.State.FlowsOf(projectID)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": p, "flows": flows})
				}
				fmt.Printf("Project %s", p.ID)
				if p.Name != "" {
					fmt.Printf(" (%s)", p.Name)
				}
				fmt.Println()
				tw := newTable()
				tw.SetTitle("Users")
				tw.AppendHeader(table.Row{"ID", "Name"})
				for _, u := range p.Users {
					tw.AppendRow(table.Row{u.ID, u.Name})
				}
				tw.Render()
				printTeams(p.Teams)
				ft := newTable()
				ft.SetTitle("Flows")
				ft.AppendHeader(table.Row{"ID", "Name", "Stages", "Activities"})
				for _, f := range flows {
					ft.AppendRow(table.Row{f.ID, f.Name, len(f.Stages), len(f.ActivityIDs)})
				}
				ft.Render()
				return nil
			})
		},
	}
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage project users"}
	var id string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a user to the project directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u domain.User
			err := withUpdate(cmd.Context(), true, func(ctx context.Context, e engine.Engine, projectID, actor string) error {
				var err error
				u, err = e.AddUser(ctx, projectID, domain.User{ID: id, Name: args[0]}, actor)
				return err
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(u)
			}
			fmt.Println("added user", u.ID)
			return nil
		},
	}
	add.Flags().StringVar(&id, "id", "", "user id (generated when empty)")
	usr.AddCommand(add)
	return usr
}

func teamCmd() *cobra.Command {
	tm := &cobra.Command{Use: "team", Short: "Manage teams"}
	tm.AddCommand(teamCreateCmd())
	tm.AddCommand(teamListCmd())
	tm.AddCommand(teamUpdateCmd())
	tm.AddCommand(teamDeleteCmd())
	return tm
}

func teamCreateCmd() *cobra.Command {
	var users []string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t domain.Team
			err := withUpdate(cmd.Context(), true, func(ctx context.Context, e engine.Engine, projectID, actor string) error {
				var err error
				t, err = e.CreateTeam(ctx, projectID, args[0], users, actor)
				return err
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(t)
			}
			fmt.Printf("created team %s (%s)\n", t.ID, t.Color)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&users, "user", nil, "member user id (repeatable)")
	return cmd
}

func teamListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withView(cmd.Context(), func(e engine.Engine, projectID string) error {
				items, err := e.Teams().List(projectID)
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

func teamUpdateCmd() *cobra.Command {
	var name, color string
	var users []string
	cmd := &cobra.Command{
		Use:   "update <team-id>",
		Short: "Rename, recolor or replace the members of a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd teams.TeamUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("color") {
				upd.Color = &color
			}
			if cmd.Flags().Changed("user") {
				upd.UserIDs = append([]string{}, users...)
			}
			var t domain.Team
			var found bool
			err := withUpdate(cmd.Context(), true, func(ctx context.Context, e engine.Engine, projectID, actor string) error {
				var err error
				t, found, err = e.UpdateTeam(ctx, projectID, args[0], upd, actor)
				return err
			})
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("team %s not found", args[0])
			}
			return printJSONOrTable(t)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&color, "color", "", "new color")
	cmd.Flags().StringSliceVar(&users, "user", nil, "member user id (repeatable, replaces members)")
	return cmd
}

func teamDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <team-id>",
		Short: "Delete team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var found bool
			err := withUpdate(cmd.Context(), true, func(ctx context.Context, e engine.Engine, projectID, actor string) error {
				var err error
				found, err = e.DeleteTeam(ctx, projectID, args[0], actor)
				return err
			})
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("team %s not found", args[0])
			}
			fmt.Println("deleted team", args[0])
			return nil
		},
	}
}

func printTeams(items []domain.Team) {
	tw := newTable()
	tw.SetTitle("Teams")
	tw.AppendHeader(table.Row{"ID", "Name", "Color", "Members"})
	for _, t := range items {
		tw.AppendRow(table.Row{t.ID, t.Name, t.Color, strings.Join(t.UserIDs, ", ")})
	}
	tw.Render()
}
