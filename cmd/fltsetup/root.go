/*
 * Copyright 2025 Cyberhaven, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyberhaven/fltsetup/pkg/altitude"
	"github.com/cyberhaven/fltsetup/pkg/config"
	"github.com/cyberhaven/fltsetup/pkg/fltmgr"
	"github.com/cyberhaven/fltsetup/pkg/installer"
	"github.com/cyberhaven/fltsetup/pkg/kv"
	"github.com/cyberhaven/fltsetup/pkg/logger"
	"github.com/cyberhaven/fltsetup/pkg/models"
	"github.com/cyberhaven/fltsetup/pkg/svcmgr"
)

var errUnknownBackend = errors.New("unknown store backend")

// Config is the fltsetup CLI configuration.
type Config struct {
	Store struct {
		// Backend selects persistence: "memory" (single run), "nats"
		// (shared JetStream bucket), or "registry" on Windows.
		Backend string `json:"backend"`
		NATSURL string `json:"nats_url,omitempty"`
		Bucket  string `json:"bucket,omitempty"`
		BaseKey string `json:"base_key,omitempty"`
	} `json:"store"`
	StagingDir  string          `json:"staging_dir"`
	StopTimeout models.Duration `json:"stop_timeout,omitempty"`
	Logger      logger.Config   `json:"logger"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	// An empty backend picks the platform default: the registry on
	// Windows, the in-memory store elsewhere.
	if c.Store.Backend == "nats" && c.Store.NATSURL == "" {
		return errors.New("store.nats_url is required for the nats backend")
	}

	if c.StagingDir == "" {
		c.StagingDir = defaultStagingDir()
	}

	return nil
}

type app struct {
	cfg       *Config
	log       logger.Logger
	store     kv.Store
	installer *installer.Installer
	flt       *fltmgr.Manager
	alts      *altitude.Registry
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg := &Config{}

	if configPath != "" {
		if err := config.NewConfig().LoadAndValidate(ctx, configPath, cfg); err != nil {
			return nil, err
		}
	} else {
		cfg.Logger = logger.DefaultConfig()

		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	alts := altitude.NewRegistry(store, altitude.ContentScreenerRange)
	if err := alts.Load(ctx); err != nil {
		return nil, err
	}

	ctl := newServiceControl()
	stager := svcmgr.NewFileStager(cfg.StagingDir)

	var opts []svcmgr.Option
	if cfg.StopTimeout > 0 {
		opts = append(opts, svcmgr.WithStopTimeout(time.Duration(cfg.StopTimeout)))
	}

	svc := svcmgr.New(store, ctl, stager, log, opts...)
	flt := fltmgr.New(store, alts, log)
	inst := installer.New(store, svc, flt, ctl, installer.NewJournal(), log)

	return &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		installer: inst,
		flt:       flt,
		alts:      alts,
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fltsetup",
		Short:         "Install and manage minifilter driver registrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	root.AddCommand(
		newInstallCmd(&configPath),
		newUninstallCmd(&configPath),
		newStatusCmd(&configPath),
		newFiltersCmd(&configPath),
	)

	return root
}

func newInstallCmd(configPath *string) *cobra.Command {
	var (
		planPath string
		s2e      bool
		binary   string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Stage, register, and start a filter driver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := loadPlan(ctx, planPath, s2e, binary)
			if err != nil {
				return err
			}

			plan.Force = force

			reached, err := a.installer.Install(ctx, plan)
			if err != nil {
				return fmt.Errorf("install halted at %s: %w", reached, err)
			}

			fmt.Printf("%s is %s\n", plan.Descriptor.Name, reached)

			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "Path to an install plan (JSON)")
	cmd.Flags().BoolVar(&s2e, "s2e", false, "Use the stock s2e guest driver plan")
	cmd.Flags().StringVar(&binary, "binary", "", "Driver image path for --s2e")
	cmd.Flags().BoolVar(&force, "force", false, "Replace a conflicting existing service")

	return cmd
}

func loadPlan(ctx context.Context, planPath string, s2e bool, binary string) (*installer.Plan, error) {
	if s2e {
		if binary == "" {
			return nil, errors.New("--binary is required with --s2e")
		}

		return installer.S2EPlan(binary), nil
	}

	if planPath == "" {
		return nil, errors.New("either --plan or --s2e is required")
	}

	plan := &installer.Plan{}
	if err := config.NewConfig().LoadAndValidate(ctx, planPath, plan); err != nil {
		return nil, err
	}

	return plan, nil
}

func newUninstallCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <service>",
		Short: "Stop a filter driver and remove its registrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			reached, err := a.installer.Uninstall(ctx, args[0])
			if err != nil {
				return fmt.Errorf("uninstall halted at %s: %w", reached, err)
			}

			fmt.Printf("%s is %s\n", args[0], reached)

			return nil
		},
	}
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <service>",
		Short: "Show the install state and records for a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.installer.Status(ctx, args[0])
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}

			fmt.Fprintln(os.Stdout, string(out))

			return nil
		},
	}
}

func newFiltersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "filters",
		Short: "List claimed altitudes, lowest (closest to the file system) first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, claim := range a.alts.Claims() {
				fmt.Printf("%s\t%s\n", claim.Altitude, claim.Owner)
			}

			return nil
		},
	}
}
