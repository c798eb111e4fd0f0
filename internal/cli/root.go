// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-signer.
//
// go-signer is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-signer/internal/config"
	"github.com/jeremyhahn/go-signer/pkg/backend"
	"github.com/jeremyhahn/go-signer/pkg/correlation"
	"github.com/jeremyhahn/go-signer/pkg/logging"
	"github.com/jeremyhahn/go-signer/pkg/metrics"
	"github.com/jeremyhahn/go-signer/pkg/token"
)

const envPrefix = "SIGNER"

// app carries the state shared by every command of one run
type app struct {
	flags  *Flags
	cfg    *config.Config
	logger *logging.Logger
	opID   string

	out    io.Writer
	errOut io.Writer

	// loadModule opens PKCS#11 libraries; nil uses token.LoadModule
	loadModule token.Loader

	// openBackend builds the signing backend from the loaded configuration
	openBackend func(a *app) (backend.Backend, error)
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		flags:       NewFlags(),
		out:         out,
		errOut:      errOut,
		openBackend: openBackend,
	}
}

// Execute runs the signer command line with the process arguments
func Execute() error {
	return newApp(os.Stdout, os.Stderr).execute(os.Args[1:])
}

func (a *app) execute(args []string) error {
	cmd := a.newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)

	err := cmd.ExecuteContext(correlation.FromEnvironment(context.Background()))
	if err != nil {
		_ = a.printer(a.errOut).PrintError(err) // best effort
	}
	a.writeMetrics()
	return err
}

func (a *app) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signer",
		Short: "signer - raw GOST and RSA signatures with software or PKCS#11 keys",
		Long: `signer produces detached raw signatures over files with a key held
in a password protected software container or on a PKCS#11 token.

Supported backends:
  - software: keystore container (.yaml) or PKCS#12 (.p12, .pfx)
  - pkcs11:   PKCS#11 token, key selected by certificate

Every flag can also be set through a SIGNER_ environment variable, e.g.
--log-level as SIGNER_LOG_LEVEL.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.initialize,
	}
	a.flags.register(cmd.PersistentFlags())

	cmd.AddCommand(a.newSignCmd())
	cmd.AddCommand(a.newVerifyCmd())
	cmd.AddCommand(a.newDigestCmd())
	cmd.AddCommand(a.newAlgorithmsCmd())
	cmd.AddCommand(a.newKeyStoreCmd())
	cmd.AddCommand(a.newTokenCmd())
	cmd.AddCommand(a.newVersionCmd())
	return cmd
}

// initialize resolves the configuration for the command about to run:
// defaults, then the config file and SIGNER_* overrides, then flags.
func (a *app) initialize(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if err := bindFlags(cmd, v); err != nil {
		return err
	}

	cfg, err := config.Load(a.flags.ConfigFile)
	if err != nil {
		return err
	}
	if err := a.flags.apply(cfg, cmd.Flags()); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	a.opID = correlation.GetOrGenerate(cmd.Context())
	a.logger = logging.New(logging.Options{
		Debug:  cfg.Debug(),
		Format: cfg.Logging.Format,
		Writer: a.errOut,
	}).With("operation_id", a.opID)
	a.logger.Debugf("configuration loaded (backend=%s, output=%s)", cfg.Backend, cfg.Output)
	return nil
}

// bindFlags sets every flag not given on the command line from its
// environment variable, if one is set.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindFlagErr []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" {
			return
		}

		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --log-level to SIGNER_LOG_LEVEL
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				bindFlagErr = append(bindFlagErr, fmt.Errorf("binding env to flag %q: %w", f.Name, err))
				return
			}
		}

		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				bindFlagErr = append(bindFlagErr, fmt.Errorf("setting flag %q value: %w", f.Name, err))
			}
		}
	})
	return errors.Join(bindFlagErr...)
}

// printer returns a Printer in the configured output format
func (a *app) printer(w io.Writer) *Printer {
	format := a.flags.OutputFormat
	if a.cfg != nil {
		format = a.cfg.Output
	}
	return NewPrinter(format, w)
}

// log returns the run logger, or the default one before initialization
func (a *app) log() *logging.Logger {
	if a.logger == nil {
		return logging.DefaultLogger()
	}
	return a.logger
}

// writeMetrics dumps the registry for the node exporter textfile collector
func (a *app) writeMetrics() {
	if a.cfg == nil || !a.cfg.Metrics.Enabled || a.cfg.Metrics.File == "" {
		return
	}
	if err := metrics.WriteToTextfile(a.cfg.Metrics.File); err != nil {
		a.log().Warnf("failed to write metrics to %s: %v", a.cfg.Metrics.File, err)
	}
}
