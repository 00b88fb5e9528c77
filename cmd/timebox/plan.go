package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timebox/internal/autosave"
	"timebox/internal/metrics"
	"timebox/internal/model"
	"timebox/internal/planner"
)

const loadWait = 10 * time.Second

func dateArg(args []string) (time.Time, error) {
	if len(args) == 0 || args[0] == "today" {
		return model.Day(time.Now()), nil
	}
	return model.ParseDate(args[0])
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [yyyy-mm-dd]",
		Short: "Print the plan for a day (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dateArg(args)
			if err != nil {
				return err
			}
			id, err := a.requireUser(cmd.Context())
			if err != nil {
				return err
			}
			p, _, err := a.client.Read(cmd.Context(), model.NewPlanKey(id.UserID, d))
			if err != nil {
				return fmt.Errorf("load plan: %w", err)
			}
			render(cmd.OutOrStdout(), d, p, a.settings())
			return nil
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit [yyyy-mm-dd]",
		Short: "Edit a day interactively; changes are saved as you go",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dateArg(args)
			if err != nil {
				return err
			}
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			return a.edit(cmd, d)
		},
	}
}

func (a *app) edit(cmd *cobra.Command, d time.Time) error {
	if err := planner.CheckDate(d, time.Now()); err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	// sync counters are only worth collecting when someone reads the log
	var reg *prometheus.Registry
	var am *metrics.Autosave
	if a.verbose {
		reg = prometheus.NewRegistry()
		am = metrics.NewAutosave(reg)
	}

	s := planner.NewSession(a.ids, func(st autosave.State) planner.Syncer {
		return autosave.New(a.client, st,
			autosave.WithLogger(a.log.Named("autosave")),
			autosave.WithMetrics(am),
		)
	}, planner.WithSettings(a.settings()), planner.WithDate(d))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadWait)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "some changes may not be saved: %v\n", err)
		}
		if reg != nil {
			logCounters(a.log.Named("autosave"), reg)
		}
	}()

	waitLoaded(cmd.Context(), s)
	render(out, s.Date(), s.Plan(), s.Settings())
	fmt.Fprintln(out, "type `help` for commands")

	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}
		c, err := parseLine(in.Text(), time.Now())
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if c.action == actSave {
			s.Save(cmd.Context())
			continue
		}
		quit, err := apply(s, c, out)
		switch {
		case errors.Is(err, planner.ErrLoading):
			fmt.Fprintln(out, "still loading, try again in a moment")
		case err != nil:
			fmt.Fprintln(out, err)
		case c.action == actDate:
			waitLoaded(cmd.Context(), s)
			render(out, s.Date(), s.Plan(), s.Settings())
		}
		if quit {
			return nil
		}
	}
}

func waitLoaded(ctx context.Context, s *planner.Session) {
	ctx, cancel := context.WithTimeout(ctx, loadWait)
	defer cancel()
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for s.Loading() {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// logCounters writes every counter in g as one log line.
func logCounters(log *zap.Logger, g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		log.Warn("gather counters", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields := []zap.Field{zap.Float64("value", m.GetCounter().GetValue())}
			for _, l := range m.GetLabel() {
				fields = append(fields, zap.String(l.GetName(), l.GetValue()))
			}
			log.Info(mf.GetName(), fields...)
		}
	}
}
