package clicommon

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/flab-reels/authcdk/pkg/closenicely"
	"github.com/flab-reels/authcdk/pkg/logging"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type CommonConfig struct {
	Verbosity VerbosityFlag
	JsonLog   bool
	Color     string
	profileTo string

	HadWarnings *atomic.Bool
	HadErrors   *atomic.Bool
}

func (cfg *CommonConfig) Verbose() bool {
	return cfg.Verbosity > 0
}

// InternalDebug is set by passing -v twice. Errors are then printed with their stack traces.
func (cfg *CommonConfig) InternalDebug() bool {
	return cfg.Verbosity > 1
}

func setupProfiling(commonCfg *CommonConfig) func() {
	if commonCfg.profileTo != "" {
		err := os.MkdirAll(filepath.Dir(commonCfg.profileTo), 0755)
		if err != nil {
			panic(fmt.Errorf("failed to create profile directory: %w", err))
		}
		profileF, err := os.OpenFile(commonCfg.profileTo, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if err != nil {
			panic(fmt.Errorf("failed to open profile file: %w", err))
		}
		err = pprof.StartCPUProfile(profileF)
		if err != nil {
			panic(fmt.Errorf("failed to start profile: %w", err))
		}
		return func() {
			pprof.StopCPUProfile()
			closenicely.OrDebug(profileF)
		}
	}
	return func() {}
}

func (cfg *CommonConfig) LogOpts() logging.LogOpts {
	opts := logging.LogOpts{
		Verbose: cfg.Verbose(),
		Color:   cfg.Color,
		DefaultLevels: map[string]zapcore.Level{
			"publish": zap.InfoLevel,
		},
		HadWarnings: cfg.HadWarnings,
		HadErrors:   cfg.HadErrors,
	}
	if cfg.JsonLog {
		opts.Encoding = "json"
	}
	if cfg.InternalDebug() {
		opts.DefaultLevels = nil
	}
	return opts
}

func SetupRoot(root *cobra.Command, commonCfg *CommonConfig) {
	if commonCfg.HadWarnings == nil {
		commonCfg.HadWarnings = atomic.NewBool(false)
	}
	if commonCfg.HadErrors == nil {
		commonCfg.HadErrors = atomic.NewBool(false)
	}

	flags := root.PersistentFlags()
	flags.VarP(&commonCfg.Verbosity, "verbose", "v", "Enable verbose logging, repeat for stack traces")
	flags.Lookup("verbose").NoOptDefVal = "true"
	flags.BoolVar(&commonCfg.JsonLog, "json-log", false, "Enable JSON logging")
	flags.StringVar(&commonCfg.Color, "color", "auto", "Colorize output: auto, always or never")
	flags.StringVar(&commonCfg.profileTo, "profiling", "", "Profile to file")
	_ = flags.MarkHidden("profiling")

	profileClose := func() {}

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		zap.ReplaceGlobals(commonCfg.LogOpts().NewLogger())

		profileClose = setupProfiling(commonCfg)
	}

	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		closenicely.FuncOrDebug(zap.L().Sync)

		profileClose()
	}
}
