package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/livesettings/internal/appsettings"
	"github.com/dshills/livesettings/internal/settings"
	"github.com/dshills/livesettings/internal/settings/loader"
	"github.com/dshills/livesettings/internal/settings/notify"
)

type cliOptions struct {
	file     string
	logLevel string
	logger   *slog.Logger
}

func defaultFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "settings.toml"
	}
	return filepath.Join(dir, "livesettings", "settings.toml")
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "settings",
		Short:         "Inspect and edit application settings",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setupLogging(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&opts.file, "file", defaultFile(), "settings file (.toml, .yaml, .yml, .db, .sqlite)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&noColor, "no-color", noColor, "disable colored output")

	root.AddCommand(
		newKeysCmd(),
		newGetCmd(opts),
		newSetCmd(opts),
		newResetCmd(opts),
		newDumpCmd(opts),
		newMigrateCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func (o *cliOptions) setupLogging(w io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", o.logLevel, err)
	}
	o.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return nil
}

func (o *cliOptions) open(cmd *cobra.Command, extra ...settings.Option) (*settings.Settings, error) {
	if !cmd.Flags().Changed("file") {
		if err := os.MkdirAll(filepath.Dir(o.file), 0o755); err != nil {
			return nil, fmt.Errorf("creating settings directory: %w", err)
		}
	}
	opts := append([]settings.Option{settings.WithLogger(o.logger)}, extra...)
	return appsettings.Open(o.file, opts...)
}

// closeWith closes s and keeps the first error.
func closeWith(s *settings.Settings, err *error) {
	if cerr := s.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

// --- keys ---

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List every setting with its type and default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := appsettings.NewRegistry().Resolve(appsettings.Root)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tTYPE\tDEFAULT\tDESCRIPTION")
			for _, l := range tree.Leaves() {
				def := "-"
				if l.Property.Default != nil {
					def = formatValue(l.Property.Default)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.Path, l.Property.Type, def, l.Property.Description)
			}
			return tw.Flush()
		},
	}
}

// --- get ---

func newGetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeWith(s, &err)

			v, ok, err := s.Root().Lookup(args[0])
			if err != nil {
				return err
			}
			if !ok {
				printWarning(cmd.ErrOrStderr(), "%s is not set", args[0])
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

// --- set ---

func newSetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting",
		Long: `Store a setting. The value is parsed according to the setting's type.

Examples:
  settings set View.FontScale 125
  settings set View.ShowComments true
  settings set Editor.WordWrap bounded`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeWith(s, &err)

			leaf, ok := s.Tree().Leaf(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", settings.ErrUnknownSetting, args[0])
			}
			v, err := leaf.Property.Type.Parse(args[1])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := s.Root().Set(args[0], v); err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "%s = %s", args[0], formatValue(v))
			return nil
		},
	}
}

// --- reset ---

func newResetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <key>",
		Short: "Remove a stored setting so its default applies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeWith(s, &err)

			if err := s.Root().Reset(args[0]); err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "%s reset", args[0])
			return nil
		},
	}
}

// --- dump ---

func newDumpCmd(opts *cliOptions) *cobra.Command {
	var format string
	var stored bool

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print all settings",
		Long: `Print all settings. By default every declared setting is printed with its
effective value; --stored prints only what the file holds, including
migration markers and keys the schema does not declare.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			codec, err := loader.ForPath("dump." + format)
			if err != nil {
				return fmt.Errorf("invalid --format %q", format)
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeWith(s, &err)

			var values map[string]any
			if stored {
				values = s.Store().Snapshot()
			} else if values, err = s.Root().Snapshot(); err != nil {
				return err
			}

			data, err := codec.Encode(values)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "toml", "output format (toml, yaml)")
	cmd.Flags().BoolVar(&stored, "stored", false, "print stored values only")
	return cmd
}

// --- migrate ---

func newMigrateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending settings migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeWith(s, &err)

			out := cmd.OutOrStdout()
			for _, res := range s.Migrations() {
				if !res.Applied {
					printStatus(out, res.Marker, "already applied")
					continue
				}
				printStatus(out, res.Marker, "applied (%d moved, %d skipped)", len(res.Moved), len(res.Skipped))
				for _, r := range res.Moved {
					fmt.Fprintf(out, "    %s\n", r)
				}
			}
			return nil
		},
	}
}

// --- watch ---

func newWatchCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print changes to the settings file until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := opts.open(cmd, settings.WithWatch(true))
			if err != nil {
				return err
			}
			defer closeWith(s, &err)

			out := cmd.OutOrStdout()
			sub := s.SubscribeAll(func(c notify.Change) {
				fmt.Fprintln(out, formatChange(c))
			})
			defer sub.Unsubscribe()

			printStatus(cmd.ErrOrStderr(), "watching", "%s", opts.file)
			<-ctx.Done()
			return nil
		},
	}
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(v)
}

func formatChange(c notify.Change) string {
	if c.Type == notify.ChangeDelete {
		return fmt.Sprintf("%s: %s removed (%s)", c.Path, formatValue(c.OldValue), c.Source)
	}
	if c.OldValue == nil {
		return fmt.Sprintf("%s: %s (%s)", c.Path, formatValue(c.NewValue), c.Source)
	}
	return fmt.Sprintf("%s: %s -> %s (%s)", c.Path, formatValue(c.OldValue), formatValue(c.NewValue), c.Source)
}
