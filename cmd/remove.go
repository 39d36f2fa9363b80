package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

var removeArchive string

// removeCmd represents the remove command
var removeCmd = &cobra.Command{
	Use:     "remove [flags] PATH",
	Aliases: []string{"rm"},
	Short:   "Remove a file or directory from an archive",
	Long: `Removes a file or directory from an archive.

Directories are removed along with everything in them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execArchive(removeArchive, sqlar.OpenOptions{}, func(ar *sqlar.Archive) error {
			f, err := ar.Open(args[0])
			if err != nil {
				return err
			}
			return f.Delete()
		})
	},
}

func init() {
	removeCmd.Flags().StringVarP(&removeArchive, "archive", "a", "", "The path of the archive")
	removeCmd.MarkFlagRequired("archive")

	rootCmd.AddCommand(removeCmd)
}
