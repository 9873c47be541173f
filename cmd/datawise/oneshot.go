package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/datawise/datawise/internal/engine"
	"github.com/datawise/datawise/internal/events"
	"github.com/datawise/datawise/internal/protocol"
	"github.com/datawise/datawise/internal/service"
)

// oneShotTaskID identifies the single task a shell invocation runs.
const oneShotTaskID = 1

func newExecCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec SQL",
		Short: "Execute a statement and print a preview of its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, opts, protocol.ExecuteSQL{SQL: args[0]})
		},
	}
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	var (
		table     string
		format    string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "import PATH",
		Short: "Load a CSV, Parquet or JSON file into a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := protocol.ImportFile{Path: args[0], Overwrite: overwrite}
			if table != "" {
				c.TableName = &table
			}
			if format != "" {
				f, err := protocol.ParseFormat(format)
				if err != nil {
					return err
				}
				c.Format = f
			}
			return runOneShot(cmd, opts, c)
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "", "Target table (defaults to the file name)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "File format: csv|parquet|json (defaults to the extension)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace the table if it exists")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export SOURCE PATH",
		Short: "Write a table or query result to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := protocol.ExportFile{Source: args[0], Path: args[1]}
			if format != "" {
				f, err := protocol.ParseFormat(format)
				if err != nil {
					return err
				}
				c.Format = f
			}
			if err := runOneShot(cmd, opts, c); err != nil {
				return err
			}
			if info, err := os.Stat(c.Path); err == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%s)\n", c.Path, humanize.Bytes(uint64(info.Size())))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "File format: csv|parquet|json (defaults to the extension)")
	return cmd
}

// runOneShot opens the configured engine, dispatches one command and renders
// its result. Progress is shown on stderr when it is a terminal.
func runOneShot(cmd *cobra.Command, opts *globalOptions, typ protocol.CmdType) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	sink := newLogSink(cfg.Log)
	sink.install()
	defer sink.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	m, err := engine.Open(ctx, cfg.EngineOptions())
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			slog.Warn("engine close failed", slog.Any("err", err))
		}
	}()

	hub := events.NewHub(cfg.Events.Capacity)
	defer hub.Close()
	d := service.NewDispatcher(m, hub, cfg.ColumnarOptions())

	var progress io.Writer
	if isTerminal(cmd.ErrOrStderr()) {
		progress = cmd.ErrOrStderr()
	}
	rcv := d.Subscribe()
	defer rcv.Close()

	var finished protocol.Finished
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return followProgress(gctx, rcv, progress)
	})
	g.Go(func() error {
		var err error
		finished, err = d.Run(gctx, protocol.Command{TaskID: oneShotTaskID, Type: typ})
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), finished)
}

// followProgress drains rcv until the task's terminal event, drawing a
// progress line on w when w is not nil.
func followProgress(ctx context.Context, rcv *events.Receiver, w io.Writer) error {
	for {
		evt, err := rcv.Recv(ctx)
		if err != nil {
			if _, lagged := events.IsLagged(err); lagged {
				continue
			}
			if errors.Is(err, events.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if evt.Event.TaskID != oneShotTaskID {
			continue
		}
		if p, ok := evt.Event.Kind.(protocol.Progress); ok && w != nil {
			fmt.Fprintf(w, "\r%3d%% %s / %s", p.Pct,
				humanize.Bytes(p.BytesProcessed), humanize.Bytes(p.TotalBytes))
			if p.Pct == 100 {
				fmt.Fprintln(w)
			}
		}
		if evt.Event.Kind.Terminal() {
			return nil
		}
	}
}
