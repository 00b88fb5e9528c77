package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timebox/internal/client"
	"timebox/internal/config"
	"timebox/internal/identity"
	"timebox/internal/planner"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgPath string
	server  string
	verbose bool

	cfg    *config.Client
	log    *zap.Logger
	client *client.Client
	ids    *identity.Provider
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "timebox",
		Short:         "Plan your day in time boxes",
		Long:          "timebox - three priorities, a brain dump and a half-hour grid for each day, saved to the planner server as you type.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default ~/.config/timebox/config.yaml)")
	root.PersistentFlags().StringVar(&a.server, "server", "", "server address, overrides the config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log sync activity to stderr")

	root.AddCommand(
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newShowCmd(a),
		newEditCmd(a),
		newSettingsCmd(a),
	)
	return root
}

func (a *app) load() error {
	if a.cfgPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		a.cfgPath = p
	}
	cfg, err := config.LoadClient(a.cfgPath)
	if err != nil {
		return err
	}
	if a.server != "" {
		cfg.Server = a.server
	}
	a.cfg = cfg

	if a.verbose {
		a.log, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
	} else {
		a.log = zap.NewNop()
	}
	return nil
}

// connect dials the server and resumes the stored session, if any.
func (a *app) connect(ctx context.Context) error {
	keys := &fileKeyring{path: a.cfgPath, cfg: a.cfg}
	c, err := client.Dial(a.cfg.Server,
		client.WithLogger(a.log.Named("client")),
		client.OnRefresh(func(cr identity.Credentials) {
			if err := keys.Save(cr); err != nil {
				a.log.Warn("save refreshed credentials", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return err
	}
	a.client = c
	a.ids = identity.NewProvider(c, keys, a.log.Named("identity"))
	if err := a.ids.Restore(ctx); err != nil {
		return fmt.Errorf("session expired, log in again: %w", err)
	}
	return nil
}

// requireUser connects and fails unless someone is signed in.
func (a *app) requireUser(ctx context.Context) (*identity.Identity, error) {
	if err := a.connect(ctx); err != nil {
		return nil, err
	}
	id := a.ids.Current()
	if id == nil {
		return nil, errors.New("not logged in; run `timebox login`")
	}
	return id, nil
}

func (a *app) settings() planner.Settings {
	return planner.Settings{StartHour: a.cfg.StartHour, EndHour: a.cfg.EndHour}.Clamped()
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.log != nil {
		a.log.Sync()
	}
}
