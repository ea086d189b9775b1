package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/flab-reels/authcdk/pkg/assembly"
	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func synthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "synth",
		Short: "Write the templates and manifest of the selected stacks to the assembly directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, selected, err := buildStacks(cmd.Context())
			if err != nil {
				return err
			}
			format, err := templateFormat(appCfg)
			if err != nil {
				return err
			}
			a, err := assembly.Synthesize(selected, format)
			if err != nil {
				return err
			}
			files, err := a.Write(cmd.Context(), appCfg.OutDir, appCfg.Publish.Concurrency)
			if err != nil {
				return errors.Wrapf(err, "could not write assembly to %s", appCfg.OutDir)
			}
			zap.L().Debug("assembly files", zap.Strings("files", logging.FileNames(files)))
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the stacks of the app in deployment order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, selected, err := buildStacks(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range selected {
				if !long {
					fmt.Fprintln(out, s.Name)
					continue
				}
				line := fmt.Sprintf("%s\t%d resources", s.Name, s.Graph.Len())
				if len(s.Dependencies) > 0 {
					line += "\tdepends on " + strings.Join(s.Dependencies, ", ")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Include the resource count and dependencies of each stack")
	return cmd
}

func graphCmd() *cobra.Command {
	var selectors []string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the resource graph of the selected stacks as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filters []construct.ResourceId
			for _, s := range selectors {
				id, err := construct.ParseSelector(s)
				if err != nil {
					return errors.Wrap(err, "invalid --resource")
				}
				filters = append(filters, id)
			}
			_, selected, err := buildStacks(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, s := range selected {
				content, err := construct.GraphToYAML(s.Graph, filters...)
				if err != nil {
					return errors.Wrapf(err, "could not render graph of %s", s.Name)
				}
				if i > 0 {
					fmt.Fprintln(out, "---")
				}
				fmt.Fprintf(out, "# %s\n%s", s.Name, content)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&selectors, "resource", nil, "Only show resources matching this id selector, such as aws:subnet. May be repeated")
	return cmd
}

var (
	createColour = color.New(color.FgGreen)
	deleteColour = color.New(color.FgRed)
	updateColour = color.New(color.FgYellow)
	headerColour = color.New(color.Bold)
)

func diffCmd() *cobra.Command {
	var fail bool
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare the selected stacks with the assembly previously written to the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, selected, err := buildStacks(cmd.Context())
			if err != nil {
				return err
			}
			format, err := templateFormat(appCfg)
			if err != nil {
				return err
			}
			current, err := assembly.Synthesize(selected, format)
			if err != nil {
				return err
			}

			var previous *assembly.Assembly
			if _, statErr := os.Stat(appCfg.OutDir); statErr == nil {
				previous, err = assembly.Read(appCfg.OutDir)
				if err != nil {
					return err
				}
				previous = onlyStacks(previous, current.StackNames())
			} else {
				zap.S().Warnf("no assembly in %s, every stack is new", appCfg.OutDir)
			}

			diffs, err := assembly.DiffAssemblies(previous, current)
			if err != nil {
				return err
			}
			printDiffs(cmd, diffs)
			if fail && len(diffs) > 0 {
				return fmt.Errorf("%d stacks differ", len(diffs))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fail, "fail", false, "Exit with an error if any stack differs")
	return cmd
}

// onlyStacks drops stacks not selected with --stack, so they are not reported as removed.
func onlyStacks(a *assembly.Assembly, names []string) *assembly.Assembly {
	if len(cfg.stacks) == 0 {
		return a
	}
	filtered := &assembly.Assembly{Manifest: assembly.Manifest{Version: a.Manifest.Version}, Templates: a.Templates, Format: a.Format}
	for _, s := range a.Manifest.Stacks {
		for _, name := range names {
			if s.StackName == name {
				filtered.Manifest.Stacks = append(filtered.Manifest.Stacks, s)
			}
		}
	}
	return filtered
}

func printDiffs(cmd *cobra.Command, diffs []assembly.StackDiff) {
	out := cmd.OutOrStdout()
	if len(diffs) == 0 {
		fmt.Fprintln(out, "There were no differences")
		return
	}
	for _, d := range diffs {
		headerColour.Fprintf(out, "Stack %s\n", d.Stack)
		for _, c := range d.Changes {
			switch c.Type {
			case assembly.Create:
				createColour.Fprintf(out, "[+] %s: %v\n", c.PathString(), c.To)
			case assembly.Delete:
				deleteColour.Fprintf(out, "[-] %s: %v\n", c.PathString(), c.From)
			default:
				updateColour.Fprintf(out, "[~] %s: %v => %v\n", c.PathString(), c.From, c.To)
			}
		}
	}
}

func publishCmd() *cobra.Command {
	var bucket, prefix string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload the assembly directory to S3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := readConfig()
			if err != nil {
				return err
			}
			pubCfg := appCfg.Publish
			if bucket != "" {
				pubCfg.Bucket = bucket
			}
			if prefix != "" {
				pubCfg.Prefix = prefix
			}
			if err := pubCfg.Validate(); err != nil {
				return errors.Wrap(err, "invalid publish config")
			}

			ctx := cmd.Context()
			if _, err := assembly.Read(appCfg.OutDir); err != nil {
				return errors.Wrapf(err, "nothing to publish in %s, run synth first", appCfg.OutDir)
			}
			publisher, err := assembly.NewPublisher(ctx, pubCfg)
			if err != nil {
				return err
			}
			result, err := publisher.Publish(ctx, appCfg.OutDir)
			if err != nil {
				return err
			}
			for _, key := range result.Keys {
				fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s\n", publisher.Bucket, key)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket to upload to (default from config)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix for uploaded objects (default from config)")
	return cmd
}
