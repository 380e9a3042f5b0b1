package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageline/internal/app"
	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/events"
	"stageline/internal/logging"
	"stageline/internal/metrics"
	"stageline/internal/repo"
	"stageline/internal/server"
	"stageline/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Stageline CLI",
	Long: `Stageline moves activities through the stages of a flow.
Core concepts:
- Workspace: the .stageline directory holding the database; stageline.yml next to it holds settings.
- Project: owns users, teams and flows.
- Flow: an ordered list of stages plus per-stage configuration (active flag, assigned teams and users).
- Stage pipeline: flows without stages of their own use the nine default stages.
- Activity: a unit of work sitting on one stage; claim it, then complete it to advance to the next active stage.
- Teams: named user groups assigned to stages; when a stage has teams only their members may work on it.
- Event log: every change is recorded, view it with 'sl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STAGELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "actor name (defaults to config actor.default)")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(flowCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var projectID string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default stageline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project-id", "", "default project id")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func migrateCmd() *cobra.Command {
	mig := &cobra.Command{Use: "migrate", Short: "Data migrations"}
	mig.AddCommand(&cobra.Command{
		Use:   "legacy-roles",
		Short: "Convert legacy role assignments into teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report any
			err := withUpdate(cmd.Context(), false, func(ctx context.Context, e engine.Engine, _ string, actor string) error {
				r, err := e.MigrateLegacyRoles(ctx, actor)
				report = r
				return err
			})
			if err != nil {
				return err
			}
			return printJSONOrTable(report)
		},
	})
	return mig
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilter
	var all, follow bool
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if !all {
					projectID, err := ws.ResolveProject(ctx, viper.GetString("project"))
					if err != nil {
						return err
					}
					f.ProjectID = projectID
				}
				evts, err := ws.Events(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") && !follow {
					return printJSON(evts)
				}
				if !viper.GetBool("json") {
					tw := newTable()
					tw.AppendHeader(table.Row{"ID", "When", "Type", "Entity", "Actor", "Payload"})
					for _, evt := range evts {
						tw.AppendRow(eventRow(evt))
					}
					tw.Render()
				}
				if !follow {
					return nil
				}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
				defer stop()
				enc := json.NewEncoder(os.Stdout)
				return ws.FollowEvents(ctx, f, interval, func(evt domain.Event) error {
					if viper.GetBool("json") {
						return enc.Encode(evt)
					}
					row := eventRow(evt)
					_, err := fmt.Printf("%v  %v  %v  %v  %v  %v\n", row...)
					return err
				})
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().BoolVar(&all, "all-projects", false, "do not filter by project")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing events as they are committed")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval with --follow")
	return cmd
}

func eventRow(evt domain.Event) table.Row {
	payload := ""
	if len(evt.Payload) > 0 {
		b, _ := json.Marshal(evt.Payload)
		payload = string(b)
	}
	return table.Row{evt.ID, humanize.Time(evt.TS.Time()), evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, payload}
}

func importCmd() *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import project documents from a JSON or YAML snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			snap, err := store.DecodeSnapshot(data)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				ids, err := ws.Import(ctx, snap, replace)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"projectIds": ids})
				}
				fmt.Printf("imported %d project(s): %s\n", len(ids), strings.Join(ids, ", "))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "replace projects that already exist")
	return cmd
}

func exportCmd() *cobra.Command {
	var out string
	var projectOnly bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export project documents as a JSON snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				var snap store.Snapshot
				var err error
				if projectOnly {
					var projectID string
					projectID, err = ws.ResolveProject(ctx, viper.GetString("project"))
					if err != nil {
						return err
					}
					snap, err = ws.ExportProject(ctx, projectID)
				} else {
					snap, err = ws.Export(ctx)
				}
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					return printJSON(snap)
				}
				b, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				return os.WriteFile(out, append(b, '\n'), 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&projectOnly, "project-only", false, "export only the selected project")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			secret := jwtSecret(cfg)
			if secret == "" {
				return errors.New("STAGELINE_JWT_SECRET or server.jwt_secret is required")
			}
			actor := viper.GetString("actor-id")
			if actor == "" {
				actor = cfg.Actor.Default
			}
			token, err := server.SignToken(secret, actor, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
			if err != nil {
				return err
			}
			collector := metrics.New()
			ws, err := app.Open(cmd.Context(), app.Options{
				Workspace: viper.GetString("workspace"),
				Config:    cfg,
				Logger:    logger,
				Sinks:     []events.Sink{collector},
			})
			if err != nil {
				return err
			}
			defer ws.Close()

			authCfg := server.AuthConfig{
				JWTSecret:              jwtSecret(cfg),
				AllowLegacyActorHeader: cfg.Server.AllowLegacyActorHeader,
				Logger:                 logger,
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return errors.New("STAGELINE_JWT_SECRET is required unless server.allow_legacy_actor_header is set")
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Workspace: ws,
				BasePath:  basePath,
				Auth:      authCfg,
				Metrics:   collector.Handler(),
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving stageline api", "addr", addr, "base_path", basePath)
			fmt.Printf("Serving Stageline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	return config.LoadOptional(viper.GetString("workspace"))
}

func jwtSecret(cfg *config.Config) string {
	if s := viper.GetString("jwt-secret"); s != "" {
		return s
	}
	return cfg.Server.JWTSecret
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	ws, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Config:    cfg,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

// withUpdate runs fn as one write session. When needProject is set the
// project is resolved from --project, the config, or the only stored one.
func withUpdate(ctx context.Context, needProject bool, fn func(ctx context.Context, e engine.Engine, projectID, actor string) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		projectID := ""
		if needProject {
			id, err := ws.ResolveProject(ctx, viper.GetString("project"))
			if err != nil {
				return err
			}
			projectID = id
		}
		actor := viper.GetString("actor-id")
		_, err := ws.Update(ctx, func(ctx context.Context, e engine.Engine) error {
			return fn(ctx, e, projectID, actor)
		})
		return err
	})
}

func withView(ctx context.Context, fn func(e engine.Engine, projectID string) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		projectID, err := ws.ResolveProject(ctx, viper.GetString("project"))
		if err != nil {
			return err
		}
		return ws.View(ctx, func(e engine.Engine) error {
			return fn(e, projectID)
		})
	})
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTS(ts domain.Timestamp) string {
	if ts == 0 {
		return ""
	}
	return humanize.Time(ts.Time())
}

func formatTSPtr(ts *domain.Timestamp) string {
	if ts == nil {
		return ""
	}
	return formatTS(*ts)
}
