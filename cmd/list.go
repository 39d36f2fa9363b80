package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

var listArchive string
var listTree bool
var listChildren bool
var listType string

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list [flags] [PARENT]",
	Short: "List files in an archive",
	Long: `Lists the paths in an archive, parents before their contents.

By default every entry below PARENT (or the whole archive) is listed; with
--children only the entries directly inside it are.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if listTree && listChildren {
			return userErrorf("--tree and --children can't be used together")
		}

		var parent string
		if len(args) == 1 {
			parent = args[0]
		}

		opts := sqlar.NewListOptions().ByDepth()
		if listChildren {
			opts = opts.ChildrenOf(parent)
		} else {
			opts = opts.DescendantsOf(parent)
		}

		if listType != "" {
			kind, err := sqlar.ParseFileType(listType)
			if err != nil {
				return err
			}
			opts = opts.FileType(kind)
		}

		out := cmd.OutOrStdout()
		return execArchive(listArchive, sqlar.OpenOptions{ReadOnly: true}, func(ar *sqlar.Archive) error {
			entries, err := ar.ListWith(opts)
			if err != nil {
				return err
			}
			for entries.Next() {
				fmt.Fprintln(out, entries.Entry().Path())
			}
			return entries.Err()
		})
	},
}

func init() {
	listCmd.Flags().StringVarP(&listArchive, "archive", "a", "", "The path of the archive")
	listCmd.Flags().BoolVar(&listTree, "tree", false, "List every descendant (default)")
	listCmd.Flags().BoolVarP(&listChildren, "children", "c", false, "List only immediate children")
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "Only list entries of this type [file|dir|symlink]")
	listCmd.MarkFlagRequired("archive")

	rootCmd.AddCommand(listCmd)
}
