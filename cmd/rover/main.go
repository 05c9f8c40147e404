// Command rover scans a repository with a panel of AI review agents,
// tickets the consensus findings under .rover/, and auto-repairs them in
// isolated git worktrees.
package main

import (
	"os"

	"github.com/roverhq/rover/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
