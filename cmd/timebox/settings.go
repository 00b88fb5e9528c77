package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"timebox/internal/config"
	"timebox/internal/planner"
)

func newSettingsCmd(a *app) *cobra.Command {
	var start, end int
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the hours shown in the schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			changed := false
			if cmd.Flags().Changed("start") {
				a.cfg.StartHour = start
				changed = true
			}
			if cmd.Flags().Changed("end") {
				a.cfg.EndHour = end
				changed = true
			}
			st := planner.Settings{StartHour: a.cfg.StartHour, EndHour: a.cfg.EndHour}.Clamped()
			a.cfg.StartHour, a.cfg.EndHour = st.StartHour, st.EndHour
			if changed {
				if err := config.SaveClient(a.cfgPath, a.cfg); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server: %s\nhours:  %02d:00 - %02d:30\n", a.cfg.Server, st.StartHour, st.EndHour)
			if len(st.Hours()) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "warning: start is after end, the schedule is empty")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&start, "start", 5, "first hour of the schedule (0-23)")
	cmd.Flags().IntVar(&end, "end", 23, "last hour of the schedule (0-23)")
	return cmd
}
