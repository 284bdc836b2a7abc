package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matzehuels/distbuilder/pkg/session"
)

// cacheCommand creates the download cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the source archive cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all downloaded archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.newSession(session.DefaultOptions())
			if err != nil {
				return err
			}
			files, size, err := sess.Blobs.Stats()
			if err != nil {
				return err
			}
			if files == 0 {
				printInfo("Cache is empty")
				return nil
			}
			if err := sess.Blobs.Clear(); err != nil {
				return err
			}
			printSuccess("Cleared %d cached archives (%s)", files, humanize.Bytes(uint64(size)))
			printDetail("Directory: %s", sess.Blobs.Root())
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, cfg.Directory.Blobs)
			return nil
		},
	}
}
