package internal

import (
	"errors"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/goplus/llpack/internal/lockedfile"
	"github.com/goplus/llpack/internal/vcs"
)

var syncRef string

var syncCmd = &cobra.Command{
	Use:   "sync [url]",
	Short: "Sync the package index from a git repository",
	Long: `Sync fetches ref of the git repository at url (default: the index_url
setting) into the package index directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncRef, "ref", "main", "Branch, tag or commit to check out")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	url := settings.IndexURL
	if len(args) > 0 {
		url = args[0]
	}
	if url == "" {
		return errors.New("no index url: pass one or set index_url")
	}

	dir := indexDir()
	unlock, err := lockedfile.MutexAt(dir + ".lock").Lock()
	if err != nil {
		return err
	}
	defer unlock()

	ctx := cmd.Context()
	repo := vcs.NewGitVCS()
	if err := repo.Sync(ctx, url, syncRef, dir); err != nil {
		return err
	}
	head, err := repo.Head(ctx, dir)
	if err != nil {
		return err
	}
	log.FromContext(ctx).Info("index synced", "url", url, "ref", syncRef, "commit", head, "dir", dir)
	return nil
}
