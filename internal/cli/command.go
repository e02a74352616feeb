package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/OpenGG/rc4me/internal/config"
	"github.com/OpenGG/rc4me/internal/logging"
	"github.com/OpenGG/rc4me/internal/rc"
	"github.com/OpenGG/rc4me/internal/rc/materialize"
)

// rootOptions carries flag values and the objects built from them before a
// subcommand runs.
type rootOptions struct {
	configFile string
	verbosity  int
	dryRun     bool

	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	mgr        *rc.Manager
}

// NewRootCommand constructs the root Cobra command for rc4me.
func NewRootCommand(fs afero.Fs, prompter Prompter, stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "rc4me",
		Short:         "Switch between sets of dotfiles",
		Long:          "rc4me fetches dotfile repositories into ~/.rc4me and links them into your home directory,\nkeeping the originals so you can always revert or reset.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd, fs, prompter, stderr)
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.String("home", "", "Management root holding fetched configurations (default ~/.rc4me)")
	flags.String("dest", "", "Directory receiving the dotfiles (default home directory)")
	flags.String("branch", "", "Branch to check out when cloning")
	flags.BoolP("yes", "y", false, "Pull upstream changes without asking")
	flags.StringVar(&opts.configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/rc4me/config.yaml)")
	flags.CountVarP(&opts.verbosity, "verbose", "v", "Increase log verbosity (repeatable)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the planned changes without applying them")

	cmd.AddCommand(newApplyCommand(opts, prompter, stdout))
	cmd.AddCommand(newRevertCommand(opts, stdout))
	cmd.AddCommand(newResetCommand(opts, stdout))
	cmd.AddCommand(newSelectCommand(opts, prompter, stdout))
	cmd.AddCommand(newListCommand(opts, stdout))
	cmd.AddCommand(newStatusCommand(opts, stdout))
	cmd.AddCommand(newConfigCommand(opts, stdout))

	return cmd
}

func (o *rootOptions) setup(cmd *cobra.Command, fs afero.Fs, prompter Prompter, stderr io.Writer) error {
	flags := cmd.Root().PersistentFlags()
	cfg, path, err := config.Load(config.LoadOptions{
		ConfigFile: o.configFile,
		Flags: map[string]*pflag.Flag{
			"home":       flags.Lookup("home"),
			"dest":       flags.Lookup("dest"),
			"branch":     flags.Lookup("branch"),
			"assume_yes": flags.Lookup("yes"),
		},
	})
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.configPath = path
	o.logger = logging.New(stderr, logging.Level(cfg.LogLevel, o.verbosity))

	mgr, err := rc.NewManager(fs, rc.Options{
		Root:          cfg.Home,
		Destination:   cfg.Dest,
		RemoteBaseURL: cfg.RemoteBaseURL,
		Branch:        cfg.Branch,
		AssumeYes:     cfg.AssumeYes,
		DryRun:        o.dryRun,
		Confirmer:     promptConfirmer{prompter: prompter},
	}, o.logger)
	if err != nil {
		return err
	}
	o.mgr = mgr
	return nil
}

func newApplyCommand(opts *rootOptions, prompter Prompter, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:     "apply [repo]",
		Aliases: []string{"get"},
		Short:   "Fetch a dotfile repository and make it current",
		Long: "Fetch a local directory or a GitHub owner/name repository into the management root,\n" +
			"make it the current configuration and link its files into the destination.",
		Example: "  rc4me apply jeffmm/vimrc\n  rc4me get ~/src/dotfiles",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) > 0 {
				ref = args[0]
			} else {
				value, err := prompter.Prompt("Repository (owner/name or local path)")
				if err != nil {
					return err
				}
				ref = strings.TrimSpace(value)
				if ref == "" {
					return errors.New("no repository given")
				}
			}
			result, err := opts.mgr.Apply(cmd.Context(), ref)
			if err != nil {
				return err
			}
			return opts.report(stdout, result)
		},
	}
}

func newRevertCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "revert",
		Short: "Swap back to the previous configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := opts.mgr.Revert()
			if err != nil {
				return err
			}
			return opts.report(stdout, result)
		},
	}
}

func newResetCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the dotfiles present before rc4me was first used",
		Long: "Restore the init snapshot. Files are copied rather than linked,\n" +
			"so the management root can be deleted afterwards.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := opts.mgr.Reset()
			if err != nil {
				return err
			}
			return opts.report(stdout, result)
		},
	}
}

func newSelectCommand(opts *rootOptions, prompter Prompter, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "select [name]",
		Short: "Choose a fetched configuration to make current",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := opts.mgr
			names, err := mgr.Names()
			if err != nil {
				return err
			}
			name := ""
			if len(args) > 0 {
				name = strings.TrimSpace(args[0])
				// Early validation of command-line argument; directories
				// already under the root are accepted by name.
				if !slices.Contains(names, name) {
					if valid, err := mgr.ValidateName(name); !valid {
						return fmt.Errorf("invalid configuration name: %w", err)
					}
				}
			} else {
				current, err := mgr.CurrentName()
				if err != nil {
					return err
				}
				names = reorderWithDefault(names, current)
				_, selected, err := prompter.Select("Select configuration to activate", names, current)
				if err != nil {
					return err
				}
				name = selected
			}

			result, err := mgr.Use(name)
			if err != nil {
				return err
			}
			return opts.report(stdout, result)
		},
	}
}

func newListCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List fetched configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := opts.mgr.List()
			if err != nil {
				return err
			}
			st := newStyles(stdout)
			for _, entry := range entries {
				line := fmt.Sprintf("%s [%s]", entry.Prefix, entry.Name)
				if len(entry.Qualifiers) > 0 {
					line += " (" + strings.Join(entry.Qualifiers, ", ") + ")"
				}
				switch {
				case entry.Prefix == "!":
					line = st.missing.Render(line)
				case entry.IsCurrent():
					line = st.current.Render(line)
				case slices.Contains(entry.Qualifiers, "previous"):
					line = st.previous.Render(line)
				}
				fmt.Fprintln(stdout, line)
			}
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current and previous configurations",
		Long: "Show the slots of the management root and, for every file of the current\n" +
			"configuration, whether the destination already matches it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := opts.mgr.Status()
			if err != nil {
				return err
			}
			st := newStyles(stdout)
			row := func(label, value string) {
				fmt.Fprintf(stdout, "%s %s\n", st.label.Render(fmt.Sprintf("%-12s", label+":")), value)
			}
			row("current", fmt.Sprintf("%s %s", status.CurrentName, st.muted.Render(status.Current)))
			row("previous", fmt.Sprintf("%s %s", status.PreviousName, st.muted.Render(status.Previous)))
			row("mode", status.Mode.String())
			row("root", status.Root)
			row("destination", status.Destination)
			plan, err := opts.mgr.Preview()
			if err != nil {
				opts.logger.Debug("cannot plan current configuration", "error", err)
				row("files", st.missing.Render("unavailable"))
				return nil
			}
			row("files", fmt.Sprintf("%d", len(plan.Ops)))
			for _, op := range plan.Ops {
				var state string
				switch {
				case op.InPlace:
					state = st.current.Render("in place")
				case op.Existing == materialize.ExistingNone:
					state = st.missing.Render("missing")
				default:
					state = st.previous.Render(fmt.Sprintf("differs (%s)", op.Existing))
				}
				fmt.Fprintf(stdout, "  %s %s\n", filepath.Base(op.Target), state)
			}
			return nil
		},
	}
}

func newConfigCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := opts.cfg.YAML()
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			if opts.configPath != "" {
				fmt.Fprintf(stdout, "# %s\n", opts.configPath)
			}
			_, err = stdout.Write(out)
			return err
		},
	}
}

// report prints what a switch did, or would do in dry-run mode.
func (o *rootOptions) report(stdout io.Writer, result *materialize.Result) error {
	plan := result.Plan
	source := o.displayName(plan.Source)
	if o.mgr.DryRun() {
		fmt.Fprintf(stdout, "Would switch to %s (%s mode):\n", source, plan.Mode)
		for _, op := range plan.Ops {
			line := fmt.Sprintf("  %s %s -> %s", plan.Mode, op.Target, op.Source)
			if op.NeedsBackup() {
				line += " (back up existing file)"
			} else if op.Existing != materialize.ExistingNone {
				line += fmt.Sprintf(" (replace %s)", op.Existing)
			}
			fmt.Fprintln(stdout, line)
		}
		if len(plan.Ops) == 0 {
			fmt.Fprintln(stdout, "  nothing to do")
		}
		return nil
	}

	fmt.Fprintf(stdout, "Switched to %s: %d linked, %d copied, %d backed up\n",
		source, result.Linked, result.Copied, result.BackedUp)
	return nil
}

func (o *rootOptions) displayName(path string) string {
	root := o.mgr.Layout().Root()
	if filepath.Dir(path) == root {
		return filepath.Base(path)
	}
	return path
}

// promptConfirmer asks yes/no questions through a Prompter, defaulting to no.
type promptConfirmer struct {
	prompter Prompter
}

func (c promptConfirmer) Confirm(message string) (bool, error) {
	return c.prompter.Confirm(message, false)
}

// reorderWithDefault moves the default value to the front of the list.
// If defaultValue is empty or not found, or already first, returns items unchanged.
func reorderWithDefault(items []string, defaultValue string) []string {
	if defaultValue == "" {
		return items
	}

	idx := slices.Index(items, defaultValue)
	if idx <= 0 {
		return items
	}

	// Build reordered list: [defaultValue, items before idx, items after idx]
	reordered := make([]string, 0, len(items))
	reordered = append(reordered, defaultValue)
	reordered = append(reordered, items[:idx]...)
	reordered = append(reordered, items[idx+1:]...)

	return reordered
}
