package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"mira/internal/tool"
)

var toolCmd = &cobra.Command{
	Use:   "tool <name> <json>",
	Short: "invoke one tool and print its JSON result",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, params := args[0], args[1]

		ws, err := resolveWorkspace()
		if err != nil {
			return fmt.Errorf("resolve workspace: %w", err)
		}
		deps, closeFn, err := buildDeps(cmd.Context(), ws)
		if err != nil {
			return err
		}
		defer closeFn()

		result, err := tool.Dispatch(cmd.Context(), deps, name, json.RawMessage(params))
		if err != nil {
			return err
		}
		fmt.Println(string(result))
		return nil
	},
}
