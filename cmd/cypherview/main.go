package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/systemshift/cypherview/internal/app"
	"github.com/systemshift/cypherview/internal/config"
	"github.com/systemshift/cypherview/internal/logging"
	"github.com/systemshift/cypherview/internal/viz/render"
	"github.com/systemshift/cypherview/internal/viz/session"
)

var version = "0.1.0"

// globals holds the persistent flags.
type globals struct {
	configPath string
	gateway    string
	database   string
	query      string
	refresh    bool
	verbose    bool
	timeout    time.Duration
}

var g globals

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, bad.Sprint("cypherview: ")+err.Error())
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cypherview",
		Short: "Visualize Cypher query results",
		Long: brand.Sprint("cypherview") + " lays out Neo4j query results as interactive graphs\n" +
			subtle.Sprint("Render to SVG, inspect nodes, or serve the visualizer over HTTP"),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&g.configPath, "config", "c", os.Getenv("CYPHERVIEW_CONFIG"), "TOML config file")
	f.StringVar(&g.gateway, "gateway", "", "query API base URL (overrides gateway.url)")
	f.StringVarP(&g.database, "db", "d", "", "database name")
	f.StringVarP(&g.query, "query", "q", "", "Cypher query (default "+fmt.Sprintf("%q", session.DefaultQuery)+")")
	f.BoolVar(&g.refresh, "refresh", false, "bypass cached results")
	f.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")
	f.DurationVar(&g.timeout, "timeout", time.Minute, "give up after this long")

	cmd.AddCommand(
		renderCmd(),
		inspectCmd(),
		databasesCmd(),
		serveCmd(),
	)
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.gateway != "" {
		cfg.Gateway.URL = g.gateway
	}
	return cfg, nil
}

// build loads configuration and wires the app for a one-shot command.
func build(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if g.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, true)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, logger)
}

// loadFrame opens a session for the global query, waits for the result and
// lets the layout settle.
func loadFrame(ctx context.Context, a *app.App, ticks int) (*session.Session, render.Frame, error) {
	if g.database == "" {
		return nil, render.Frame{}, errors.New("--db is required")
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	s, err := a.Sessions.Open(g.database, g.query, g.refresh)
	if err != nil {
		return nil, render.Frame{}, err
	}
	st, err := s.WaitLoaded(ctx, 10*time.Millisecond)
	if err != nil {
		return nil, render.Frame{}, err
	}
	if st == render.StatusReady {
		if err := s.Settle(ctx, ticks); err != nil {
			return nil, render.Frame{}, err
		}
	}
	frame, err := s.Frame(ctx)
	return s, frame, err
}

func renderCmd() *cobra.Command {
	var (
		out   string
		ticks int
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Lay out a query result and write it as SVG",
		Example: `  cypherview render --db movies -q "MATCH p=()-[]->() RETURN p LIMIT 25" -o graph.svg
  cypherview render --db movies > nodes.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" && stdoutIsTerminal() {
				return errors.New("refusing to write SVG to a terminal, use --out")
			}
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			_, frame, err := loadFrame(cmd.Context(), a, ticks)
			if err != nil {
				return err
			}
			statusLine(frame)

			w := os.Stdout
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			if err := render.SVG(w, frame, render.DefaultSVGOptions()); err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintf(os.Stderr, "%s %s\n", good.Sprint("wrote"), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().IntVar(&ticks, "ticks", 300, "maximum layout ticks before drawing")
	return cmd
}

func inspectCmd() *cobra.Command {
	var (
		node  string
		edge  int
		ticks int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the nodes of a query result, or the details of one node or edge",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			s, frame, err := loadFrame(cmd.Context(), a, ticks)
			if err != nil {
				return err
			}
			statusLine(frame)
			if frame.Status != render.StatusReady {
				return nil
			}

			ev := session.Event{Type: session.EventSelect, Node: node}
			if node == "" && cmd.Flags().Changed("edge") {
				ev.Edge = &edge
			}
			if ev.Node == "" && ev.Edge == nil {
				fmt.Print(nodeTable(frame))
				return nil
			}
			if _, err := s.Apply(cmd.Context(), ev); err != nil {
				return err
			}
			in, err := s.Inspector(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(inspectorBox(in, terminalWidth(60)))
			return nil
		},
	}
	cmd.Flags().StringVar(&node, "node", "", "node id to inspect")
	cmd.Flags().IntVar(&edge, "edge", 0, "edge index to inspect")
	cmd.Flags().IntVar(&ticks, "ticks", 300, "maximum layout ticks")
	return cmd
}

func databasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "databases",
		Short: "List configured databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Gateway.URL != "" {
				fmt.Printf("  %s  %s\n", brand.Sprintf("%-10s", "gateway"), cfg.Gateway.URL)
			}
			names := cfg.DatabaseNames()
			if len(names) == 0 {
				fmt.Println(subtle.Sprint("  no local databases (set NEO4J_URI_<db>, NEO4J_USERNAME_<db>, NEO4J_PASSWORD_<db>)"))
				return nil
			}
			for _, name := range names {
				db := cfg.Databases[name]
				fmt.Printf("  %s  %s %s\n", brand.Sprintf("%-10s", name), db.URI, subtle.Sprint("as "+db.Username))
			}
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API and visualization sessions over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			level := cfg.Log.Level
			if g.verbose {
				level = "debug"
			}
			logger, err := logging.New(level, cfg.Log.Development)
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := app.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return a.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
