package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/arc-hci/arcgrid/internal/domain"
	"github.com/arc-hci/arcgrid/internal/editor"
)

func newReplayCmd() *cobra.Command {
	return newReplayCmdFs(afero.NewOsFs())
}

func newReplayCmdFs(fs afero.Fs) *cobra.Command {
	var (
		inputPath string
		logPath   string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild a grid by applying an action log to an input grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			var input domain.Grid
			if err := readJSON(fs, inputPath, &input); err != nil {
				return err
			}
			var actions []domain.Action
			if err := readJSON(fs, logPath, &actions); err != nil {
				return err
			}

			grid, err := editor.Replay(input, actions)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(grid)
			}
			return writeGrid(cmd.OutOrStdout(), grid)
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "", "path to the input grid JSON")
	cmd.Flags().StringVar(&logPath, "log", "", "path to the action log JSON")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the grid as JSON")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("log")
	return cmd
}

func readJSON(fs afero.Fs, path string, v any) error {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeGrid prints one row per line with cells separated by spaces.
func writeGrid(w io.Writer, g domain.Grid) error {
	for _, row := range g {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, " ")); err != nil {
			return err
		}
	}
	return nil
}
