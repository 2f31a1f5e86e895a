// Package cli implements the kairo-ext command, a headless host for the
// extension runtime of a vault.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/kairo/internal/config"
	"github.com/dshills/kairo/internal/extension"
	"github.com/dshills/kairo/internal/extension/logstore"
	"github.com/dshills/kairo/internal/extension/sandbox/js"
	"github.com/dshills/kairo/internal/extension/security"
	"github.com/dshills/kairo/internal/hostfs"
)

// BuildInfo is injected via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// host is the state shared by every subcommand.
type host struct {
	build BuildInfo

	vault      string
	configPath string
	verbose    bool

	cfg *config.Config
	fs  *hostfs.OS
	reg *extension.Registry
}

// Execute runs the root command.
func Execute(build BuildInfo) error {
	cmd := NewRootCommand(build)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// NewRootCommand builds the command tree.
func NewRootCommand(build BuildInfo) *cobra.Command {
	h := &host{build: build}

	root := &cobra.Command{
		Use:   "kairo-ext",
		Short: "Manage and run the extensions of a vault",
		Long: `kairo-ext loads the extensions installed in a vault, runs them in their
sandbox and exposes the registry: list, enable, disable, remove, import,
run registered commands and watch the extensions directory for changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["registry"] == "none" {
				return nil
			}
			return h.open(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if h.reg != nil {
				h.reg.Shutdown(cmd.Context())
			}
		},
	}

	root.PersistentFlags().StringVar(&h.vault, "vault", ".", "Vault directory")
	root.PersistentFlags().StringVar(&h.configPath, "config", "", "Config file (default <vault>/.kairo/config.toml)")
	root.PersistentFlags().BoolVarP(&h.verbose, "verbose", "v", false, "Mirror every log entry to stderr")

	root.AddCommand(
		newListCommand(h),
		newEnableCommand(h),
		newDisableCommand(h),
		newRemoveCommand(h),
		newRunCommand(h),
		newLogsCommand(h),
		newWatchCommand(h),
		newImportCommand(h),
		newVersionCommand(h),
	)
	return root
}

// open loads the configuration and every extension of the vault.
func (h *host) open(cmd *cobra.Command) error {
	vault, err := filepath.Abs(h.vault)
	if err != nil {
		return fmt.Errorf("resolving vault: %w", err)
	}
	if info, err := os.Stat(vault); err != nil || !info.IsDir() {
		return fmt.Errorf("vault %s: %w", vault, hostfs.ErrNotDirectory)
	}
	h.vault = vault

	path := h.configPath
	if path == "" {
		path = filepath.Join(vault, ".kairo", "config.toml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	h.cfg = cfg

	h.fs = hostfs.NewOS()
	h.fs.ExtensionsDir = cfg.Extensions.Dir

	logs := logstore.New(cfg.Log.MaxEntries,
		logstore.WithMirror(h.logger(cmd)),
		logstore.WithConsoleVisible(cfg.Log.Console),
	)
	policy := js.DefaultPolicy()
	if !cfg.Policy.AllowDynamicCode {
		policy = security.NewDynamicCodePolicy(false, js.Probe)
	}

	h.reg = extension.NewRegistry(h.fs, vault,
		extension.WithLogs(logs),
		extension.WithLimits(cfg.Limits()),
		extension.WithPolicy(policy),
	)
	// failures are recorded in the log store and reported by list
	_ = h.reg.LoadExtensionsFromFolder(cmd.Context(), h.fs.ExtensionsPath(vault))
	return nil
}

// logger is the diagnostic channel. Without --verbose or console only
// warnings and errors reach stderr.
func (h *host) logger(cmd *cobra.Command) zerolog.Logger {
	level := h.cfg.LogLevel()
	if !h.verbose && !h.cfg.Log.Console && level < zerolog.WarnLevel {
		level = zerolog.WarnLevel
	}
	out := zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: "15:04:05", NoColor: true}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func (h *host) lookup(id string) (extension.Extension, error) {
	ext, ok := h.reg.Get(id)
	if !ok {
		return extension.Extension{}, fmt.Errorf("%s: %w", id, extension.ErrExtensionNotFound)
	}
	return ext, nil
}
