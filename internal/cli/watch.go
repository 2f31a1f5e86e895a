package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/kairo/internal/extension/watcher"
)

func newWatchCommand(h *host) *cobra.Command {
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload extensions as their folders change",
		Long: `Watch the extensions directory of the vault. A folder that settles after
edits is reloaded; a folder that disappears is unloaded. Runs until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := h.fs.EnsureExtensionsDirectory(h.vault)
			if err != nil {
				return err
			}
			w, err := watcher.New(root, watcher.WithDelay(delay))
			if err != nil {
				return fmt.Errorf("watching %s: %w", root, err)
			}
			defer w.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (%d extensions loaded). Press Ctrl+C to stop.\n",
				root, len(h.reg.List()))

			err = watcher.Sync(ctx, w, h.reg)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", watcher.DefaultDelay, "Quiet period before a changed folder is reloaded")
	return cmd
}
