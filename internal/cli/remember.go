package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roverhq/rover/internal/store"
)

// newRememberCmd creates the "rover remember" command.
func newRememberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remember <note>...",
		Short: "Save a note that future scans will read",
		Long: `Append a note to .rover/memory.md. The memory file is injected into
every scanner prompt, so use it to suppress known false positives or to
record project conventions the agents keep tripping over.

Multiple arguments are joined into a single note.`,
		Example: `  rover remember "the legacy/ tree is scheduled for deletion, skip it"
  rover remember panics in cmd/migrate are intentional guards`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveTarget(nil)
			if err != nil {
				return err
			}
			note := strings.Join(args, " ")
			if err := store.AppendMemory(target, note); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Remembered. Notes live in %s.\n", store.MemoryPath(target))
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newRememberCmd())
}
