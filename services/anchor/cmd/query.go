package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/redbco/redb-federation/pkg/config"
	"github.com/redbco/redb-federation/pkg/logger"
	"github.com/redbco/redb-federation/services/anchor/internal/database"
	"github.com/redbco/redb-federation/services/anchor/internal/engine"
	"github.com/redbco/redb-federation/services/anchor/internal/federation"
)

var queryFlags struct {
	file      string
	output    string
	explain   bool
	stream    bool
	timeoutMs uint64
	rowLimit  uint64
	queryID   string
	verbose   bool
}

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Run one federated query against the configured connections",
	Long: "Runs a federated query in-process and prints the result. Each configured connection id is " +
		"an alias, e.g. SELECT * FROM prod_pg.public.users u JOIN mongo.app.events e ON e.user_id = u.id",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := queryText(args, queryFlags.file, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if queryFlags.output != "table" && queryFlags.output != "json" {
			return fmt.Errorf("unknown output format %q (table or json)", queryFlags.output)
		}

		cfg, connections, log, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if !queryFlags.verbose {
			log.DisableConsoleOutput()
		}
		return runQuery(cmd, cfg, connections, query, log)
	},
}

func init() {
	f := queryCmd.Flags()
	f.StringVarP(&queryFlags.file, "file", "f", "", "Read the query from a file (- for stdin)")
	f.StringVarP(&queryFlags.output, "output", "o", "table", "Output format: table or json")
	f.BoolVar(&queryFlags.explain, "explain", false, "Print the federation plan without contacting any backend")
	f.BoolVar(&queryFlags.stream, "stream", false, "Print rows as they are produced")
	f.Uint64Var(&queryFlags.timeoutMs, "timeout-ms", 0, "Overall timeout in milliseconds (0 uses federation.default_timeout_ms)")
	f.Uint64Var(&queryFlags.rowLimit, "row-limit", 0, "Row cap per source (0 uses federation.row_limit_per_source)")
	f.StringVar(&queryFlags.queryID, "query-id", "", "Query id reported in metadata and logs")
	f.BoolVarP(&queryFlags.verbose, "verbose", "v", false, "Write service logs to stderr")
}

func queryText(args []string, file string, stdin io.Reader) (string, error) {
	var query string
	switch {
	case len(args) == 1 && file != "":
		return "", fmt.Errorf("pass the query as an argument or with --file, not both")
	case len(args) == 1:
		query = args[0]
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		query = string(b)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		query = string(b)
	default:
		return "", fmt.Errorf("no query given")
	}
	return strings.TrimSpace(query), nil
}

func runQuery(cmd *cobra.Command, cfg *config.Config, connections []config.ConnectionEntry, query string, log *logger.Logger) error {
	out := cmd.OutOrStdout()
	opts := federation.Options{
		TimeoutMs:         queryFlags.timeoutMs,
		RowLimitPerSource: queryFlags.rowLimit,
		QueryID:           queryFlags.queryID,
		Stream:            queryFlags.stream,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if queryFlags.explain {
		aliases, err := configuredAliases(connections)
		if err != nil {
			return err
		}
		eng := engine.NewEngine(cfg, database.NewSessionRegistry(nil, log), log)
		plan, err := eng.Manager().Plan(query, aliases, opts)
		if err != nil {
			return err
		}
		return renderPlan(out, plan, queryFlags.output)
	}

	sessions, err := openSessions(ctx, connections, log)
	if err != nil {
		return err
	}
	defer sessions.CloseAll()

	eng := engine.NewEngine(cfg, sessions, log)
	aliases := eng.DefaultAliases()

	if queryFlags.stream {
		md, err := streamQuery(ctx, eng.Manager(), query, aliases, opts, out, queryFlags.output)
		if err != nil {
			return err
		}
		return renderWarnings(cmd.ErrOrStderr(), md)
	}

	result, md, err := eng.Manager().Execute(ctx, query, aliases, opts)
	if err != nil {
		return err
	}
	if queryFlags.output == "json" {
		return renderJSON(out, engine.QueryResponse{Columns: result.Columns, Rows: result.Rows, Metadata: md})
	}
	if err := renderTable(out, result.Columns, result.Rows); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "(%d rows in %s)\n", len(result.Rows), md.TotalDuration.Round(time.Millisecond))
	return renderWarnings(cmd.ErrOrStderr(), md)
}

// streamQuery prints events as they arrive. Table output writes a header then
// one tab-separated line per row.
func streamQuery(ctx context.Context, m *federation.Manager, query string, aliases federation.AliasTable, opts federation.Options, out io.Writer, format string) (*federation.Metadata, error) {
	sink := federation.NewChannelSink(m.StreamBuffer())
	defer sink.Close()

	type outcome struct {
		md  *federation.Metadata
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		md, err := m.ExecuteStream(ctx, query, aliases, opts, sink)
		done <- outcome{md, err}
	}()

	enc := json.NewEncoder(out)
	emit := func(ev federation.Event) error {
		if format == "json" {
			return enc.Encode(ev)
		}
		switch ev.Type {
		case federation.EventColumns:
			_, err := fmt.Fprintln(out, strings.Join(ev.Columns, "\t"))
			return err
		case federation.EventRow:
			cells := make([]string, len(ev.Row))
			for i, v := range ev.Row {
				cells[i] = formatValue(v)
			}
			_, err := fmt.Fprintln(out, strings.Join(cells, "\t"))
			return err
		}
		return nil
	}

	var writeErr error
	for {
		select {
		case ev := <-sink.Events():
			if writeErr != nil {
				continue
			}
			if writeErr = emit(ev); writeErr != nil {
				sink.Close()
			}
		case res := <-done:
			for writeErr == nil {
				select {
				case ev := <-sink.Events():
					writeErr = emit(ev)
				default:
					return res.md, res.err
				}
			}
			return res.md, writeErr
		}
	}
}

func renderTable(w io.Writer, columns []string, rows [][]interface{}) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	underline := make([]string, len(columns))
	for i, c := range columns {
		underline[i] = strings.Repeat("-", len(c))
	}
	fmt.Fprintln(tw, strings.Join(underline, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func renderPlan(w io.Writer, plan *federation.Plan, format string) error {
	if format == "json" {
		return renderJSON(w, engine.PlanResponse{Plan: plan})
	}
	fmt.Fprintf(w, "Rewritten query:\n  %s\n\n", plan.RewrittenQuery)
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "LOCAL TABLE\tSOURCE\tDRIVER\tROW LIMIT\tSOURCE QUERY")
	for _, src := range plan.Sources {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			src.Ref.LocalAlias, src.Ref.Original, src.DriverID, src.RowLimit, src.SourceQuery)
	}
	return tw.Flush()
}

func renderJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderWarnings(w io.Writer, md *federation.Metadata) error {
	if md == nil {
		return nil
	}
	for _, warning := range md.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
