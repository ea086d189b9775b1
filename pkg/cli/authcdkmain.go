package cli

import (
	"context"
	"os"

	clicommon "github.com/flab-reels/authcdk/pkg/cli_common"
	"github.com/flab-reels/authcdk/pkg/config"
	"github.com/flab-reels/authcdk/pkg/infra/cloudformation"
	"github.com/flab-reels/authcdk/pkg/stacks"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type AuthCdkMain struct {
	Version string
}

var commonCfg clicommon.CommonConfig

var cfg struct {
	config string
	outDir string
	format string
	stacks []string
	strict bool
}

func (m AuthCdkMain) Main() {
	root := m.NewRootCmd()
	err := root.Execute()
	if err != nil {
		ErrorHandler{InternalDebug: commonCfg.InternalDebug(), Verbose: commonCfg.Verbose()}.PrintErr(err)
		zap.S().Error("authcdk failed")
		os.Exit(1)
	}
	if commonCfg.HadWarnings.Load() && cfg.strict {
		os.Exit(1)
	}
}

func (m AuthCdkMain) NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "authcdk",
		Short:         "Synthesize the CloudFormation stacks of the auth service",
		Version:       m.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	clicommon.SetupRoot(root, &commonCfg)

	flags := root.PersistentFlags()
	flags.StringVarP(&cfg.config, "config", "c", "", "Config file (json, yaml or toml). Defaults are used when omitted")
	flags.StringVarP(&cfg.outDir, "output", "o", "", "Assembly directory (default from config, cdk.out)")
	flags.StringVar(&cfg.format, "format", "", "Template format: json or yaml (default from config)")
	flags.StringArrayVar(&cfg.stacks, "stack", nil, "Only operate on this stack, may be repeated")
	flags.BoolVar(&cfg.strict, "strict", false, "Exit with an error if any warnings were logged")

	root.AddCommand(
		synthCmd(),
		listCmd(),
		graphCmd(),
		diffCmd(),
		publishCmd(),
	)
	return root
}

// readConfig loads the configuration file, if any, and applies the command line overrides.
func readConfig() (config.Application, error) {
	appCfg := config.DefaultApplication()
	if cfg.config != "" {
		var err error
		appCfg, err = config.ReadConfig(cfg.config)
		if err != nil {
			return appCfg, errors.Wrapf(err, "could not read config %s", cfg.config)
		}
		zap.S().Debugf("read %s config from %s", appCfg.Format, cfg.config)
	}
	if cfg.outDir != "" {
		appCfg.OutDir = cfg.outDir
	}
	if cfg.format != "" {
		appCfg.TemplateFormat = cfg.format
	}
	return appCfg, nil
}

// buildStacks builds the app from the configuration and returns the stacks selected with --stack.
func buildStacks(ctx context.Context) (config.Application, []*stacks.Stack, error) {
	appCfg, err := readConfig()
	if err != nil {
		return appCfg, nil, err
	}
	app, err := stacks.Build(ctx, appCfg)
	if err != nil {
		return appCfg, nil, errors.Wrap(err, "invalid application")
	}
	selected, err := app.Select(cfg.stacks)
	if err != nil {
		return appCfg, nil, err
	}
	return appCfg, selected, nil
}

func templateFormat(appCfg config.Application) (cloudformation.Format, error) {
	format, err := cloudformation.ParseFormat(config.ValueOrDefault(appCfg.TemplateFormat, string(cloudformation.JSON)))
	if err != nil {
		return "", errors.Wrap(err, "invalid --format")
	}
	return format, nil
}
