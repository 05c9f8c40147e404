package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCompletionCmd generates shell completion scripts for rover.
func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for rover.

To install completions:

  Bash (Linux):
    rover completion bash | sudo tee /etc/bash_completion.d/rover > /dev/null

  Bash (macOS with Homebrew):
    rover completion bash > $(brew --prefix)/etc/bash_completion.d/rover

  Zsh:
    rover completion zsh > "${fpath[1]}/_rover"

  Fish:
    rover completion fish > ~/.config/fish/completions/rover.fish

  PowerShell:
    rover completion powershell > rover.ps1
    # Then add ". rover.ps1" to your PowerShell profile`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletionV2(out, true)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}

func init() {
	rootCmd.AddCommand(newCompletionCmd())
}
