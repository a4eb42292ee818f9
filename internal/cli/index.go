package cli

import (
	"errors"
	"path/filepath"

	"github.com/dl-alexandre/memora/internal/sync/index"
	"github.com/dl-alexandre/memora/internal/utils"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect the local sync index",
	Long:  "Commands for inspecting which paths the agent has already synced",
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List synced paths",
	RunE:  runIndexList,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status <path>",
	Short: "Show whether a path has been synced",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexStatus,
}

var indexRootsCmd = &cobra.Command{
	Use:   "roots",
	Short: "Show the last scan of every root",
	RunE:  runIndexRoots,
}

var indexPathFlag string

func init() {
	indexCmd.PersistentFlags().StringVar(&indexPathFlag, "index", "", "Path to the local index database")

	indexCmd.AddCommand(indexListCmd)
	indexCmd.AddCommand(indexStatusCmd)
	indexCmd.AddCommand(indexRootsCmd)
	rootCmd.AddCommand(indexCmd)
}

func openIndex() (*index.DB, error) {
	path := indexPathFlag
	if path == "" {
		var err error
		if path, err = appConfig.GetIndexPath(); err != nil {
			return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig, err.Error()).Build(), err)
		}
	}
	db, err := index.Open(path)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeLocalStore,
			"failed to open index: "+err.Error()).
			WithContext("index", path).
			Build(), err)
	}
	return db, nil
}

func runIndexList(cmd *cobra.Command, args []string) error {
	out := newOutput()

	db, err := openIndex()
	if err != nil {
		return writeError(out, "index.list", err)
	}
	defer db.Close()

	entries, err := db.List(cmd.Context())
	if err != nil {
		return writeError(out, "index.list", localStoreError(err))
	}
	return out.WriteSuccess("index.list", index.EntryList(entries))
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	out := newOutput()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return writeError(out, "index.status", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath, err.Error()).Build(), err))
	}

	db, err := openIndex()
	if err != nil {
		return writeError(out, "index.status", err)
	}
	defer db.Close()

	status := map[string]interface{}{
		"path":   path,
		"synced": false,
	}

	entry, err := db.Get(cmd.Context(), path)
	switch {
	case err == nil:
		status["synced"] = true
		status["recordId"] = entry.RecordID
		status["kind"] = entry.Kind.String()
		status["syncedAt"] = entry.SyncedAt
	case !errors.Is(err, index.ErrNotFound):
		return writeError(out, "index.status", localStoreError(err))
	}

	root, err := db.GetRoot(cmd.Context(), path)
	switch {
	case err == nil:
		status["root"] = root
	case !errors.Is(err, index.ErrNotFound):
		return writeError(out, "index.status", localStoreError(err))
	}

	return out.WriteSuccess("index.status", status)
}

func runIndexRoots(cmd *cobra.Command, args []string) error {
	out := newOutput()

	db, err := openIndex()
	if err != nil {
		return writeError(out, "index.roots", err)
	}
	defer db.Close()

	roots, err := db.ListRoots(cmd.Context())
	if err != nil {
		return writeError(out, "index.roots", localStoreError(err))
	}
	return out.WriteSuccess("index.roots", index.RootList(roots))
}

func localStoreError(err error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeLocalStore, err.Error()).Build(), err)
}
