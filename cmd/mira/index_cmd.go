package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mira/internal/store"
)

var noEmbed bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "trigger a project-wide re-index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return fmt.Errorf("resolve workspace: %w", err)
		}
		path := ws
		if len(args) == 1 {
			path = args[0]
		}

		ctx := cmd.Context()
		deps, closeFn, err := buildDeps(ctx, ws)
		if err != nil {
			return err
		}
		defer closeFn()

		proj, err := store.EnsureProject(ctx, deps.DB, path, path)
		if err != nil {
			return fmt.Errorf("ensure project: %w", err)
		}

		embed, chunkVec := deps.Embed, deps.ChunkVec
		if noEmbed {
			embed, chunkVec = nil, nil
		}
		res, err := deps.Index.IndexProject(ctx, proj.ID, path, embed, chunkVec)
		if err != nil {
			return fmt.Errorf("index project: %w", err)
		}
		fmt.Printf("indexed %d files (%d failed)\n", res.FilesIndexed, res.FilesFailed)
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&noEmbed, "no-embed", false, "skip embedding newly indexed chunks")
}
