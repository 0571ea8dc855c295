package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sajjad-MoBe/walstore/internal/shared"
	"github.com/sajjad-MoBe/walstore/internal/wal"
)

var dumpPath string

var walCmd = &cobra.Command{
	Use:   "wal",
	Short: "Inspect write-ahead log files",
}

var walDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every readable record of a log file as JSON",
	RunE:  runWALDump,
}

func init() {
	walDumpCmd.Flags().StringVarP(&dumpPath, "path", "p", "", "Path of the write-ahead log file")
	_ = walDumpCmd.MarkFlagRequired("path")
	walCmd.AddCommand(walDumpCmd)
}

func runWALDump(cmd *cobra.Command, args []string) error {
	res, err := wal.ReadFile(dumpPath, wal.WithLogger(shared.NewNopLogger()))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	for _, e := range res.Entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	for _, c := range res.Corruptions {
		fmt.Fprintf(cmd.ErrOrStderr(), "line %d (offset %d): %v\n", c.Line, c.Offset, c.Err)
	}
	fmt.Fprintf(out, "# %d records, %d corrupted, last sequence %d\n",
		len(res.Entries), res.Corrupted(), res.LastSequence())
	return nil
}
