package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/dshills/kairo/internal/extension"
)

func newListCommand(h *host) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed extensions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exts := h.reg.List()
			if len(exts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No extensions installed.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tVERSION\tSTATE\tENABLED\tERROR")
			for _, ext := range exts {
				msg := ""
				if ext.Err != nil {
					msg = ext.Err.Error()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
					ext.Manifest.ID, ext.Manifest.Version, ext.State, ext.Enabled, msg)
			}
			return w.Flush()
		},
	}
}

func newEnableCommand(h *host) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>",
		Short: "Enable an extension and load it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := h.lookup(args[0]); err != nil {
				return err
			}
			if err := h.reg.EnableExtension(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("enabling extension: %w", err)
			}
			ext, _ := h.reg.Get(args[0])
			if ext.Err != nil {
				return fmt.Errorf("extension %q enabled but failed to load: %w", args[0], ext.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extension %q enabled (%s).\n", args[0], ext.State)
			return nil
		},
	}
}

func newDisableCommand(h *host) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Disable an extension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := h.lookup(args[0]); err != nil {
				return err
			}
			if err := h.reg.DisableExtension(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("disabling extension: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extension %q disabled.\n", args[0])
			return nil
		},
	}
}

func newRemoveCommand(h *host) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Unload an extension and delete it from the vault",
		Long: `Unload an extension and delete its folder, settings entry and
registrations. A vault folder whose manifest declares the id but could not
be loaded at all is deleted as a leftover.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := h.reg.RemoveExtension(cmd.Context(), args[0])
			if errors.Is(err, extension.ErrExtensionNotFound) && h.fs.ExtensionExists(h.vault, args[0]) {
				if err := h.fs.RemoveExtension(h.vault, args[0]); err != nil {
					return fmt.Errorf("removing leftover extension: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Leftover extension %q removed.\n", args[0])
				return nil
			}
			if err != nil {
				return fmt.Errorf("removing extension: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extension %q removed.\n", args[0])
			return nil
		},
	}
}

func newRunCommand(h *host) *cobra.Command {
	return &cobra.Command{
		Use:   "run <extension-id.command-id> [args...]",
		Short: "Execute a registered command",
		Long: `Execute a command registered by a loaded extension. Arguments are passed
as strings; a result other than undefined is printed as JSON.

Example:
  kairo-ext run word-count.count "some text"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id, _, ok := strings.Cut(args[0], "."); ok {
				if ext, found := h.reg.Get(id); found && !ext.Loaded {
					return errNotLoaded(ext)
				}
			}

			callArgs := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				callArgs = append(callArgs, a)
			}

			result, err := h.reg.Registries().ExecuteCommand(cmd.Context(), args[0], callArgs...)
			if err != nil {
				return fmt.Errorf("running %s: %w", args[0], err)
			}
			if result == nil {
				return nil
			}
			out, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("encoding result: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(pretty.Pretty(out)))
			return nil
		},
	}
}

func newLogsCommand(h *host) *cobra.Command {
	var only string
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the log entries produced while loading the vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := h.reg.Logs().Entries()
			if only != "" {
				entries = h.reg.Logs().ForExtension(only)
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			// oldest first reads naturally in a terminal
			for i := len(entries) - 1; i >= 0; i-- {
				e := entries[i]
				line := fmt.Sprintf("%s %-5s [%s] %s",
					e.Timestamp.Format("15:04:05.000"), strings.ToUpper(e.Level.String()), e.ExtensionID, e.Message)
				if e.Details != nil {
					if d, err := json.Marshal(e.Details); err == nil {
						line += " " + string(d)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&only, "extension", "", "Only show entries of this extension id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many of the newest entries")
	return cmd
}

func newImportCommand(h *host) *cobra.Command {
	return &cobra.Command{
		Use:   "import <folder>",
		Short: "Copy an extension folder into the vault and load it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := h.fs.ImportExtension(h.vault, args[0])
			if err != nil {
				return fmt.Errorf("importing extension: %w", err)
			}
			ext, err := h.reg.LoadExtension(cmd.Context(), dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extension %q imported to %s (%s).\n", ext.Manifest.ID, dest, ext.State)
			if ext.Err != nil {
				return fmt.Errorf("extension %q failed to load: %w", ext.Manifest.ID, ext.Err)
			}
			return nil
		},
	}
}

func newVersionCommand(h *host) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"registry": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), h.build.Version)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kairo-ext version %s (commit: %s, built: %s)\n",
				h.build.Version, h.build.Commit, h.build.Date)
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print version number only")
	return cmd
}

func errNotLoaded(ext extension.Extension) error {
	if ext.Err != nil {
		return fmt.Errorf("extension %q is %s: %w", ext.Manifest.ID, ext.State, ext.Err)
	}
	return fmt.Errorf("extension %q is %s", ext.Manifest.ID, ext.State)
}
