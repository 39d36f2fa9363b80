package cmd

import (
	"path"

	"github.com/spf13/cobra"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

var archivePath string
var archiveFollow bool
var archiveNoRecursive bool
var archiveNoPreserve bool
var archiveChildren bool

// archiveCmd represents the archive command
var archiveCmd = &cobra.Command{
	Use:   "archive [flags] SOURCE [DEST]",
	Short: "Copy a file or directory into an existing archive",
	Long: `Copies a file or directory into an existing archive.

DEST defaults to the file name of SOURCE. Missing parent directories of
DEST are created. With --children the entries inside SOURCE are copied into
DEST, which defaults to the top of the archive.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]

		var dest string
		switch {
		case len(args) == 2:
			dest = args[1]
		case !archiveChildren:
			name, err := sourceName(src)
			if err != nil {
				return err
			}
			dest = name
		}

		opts := sqlar.NewArchiveOptions().
			FollowSymlinks(archiveFollow).
			Recursive(!archiveNoRecursive).
			PreserveMetadata(!archiveNoPreserve).
			Children(archiveChildren)

		return execArchive(archivePath, sqlar.OpenOptions{}, func(ar *sqlar.Archive) error {
			parent := path.Dir(path.Clean(dest))
			if archiveChildren && dest != "" {
				parent = path.Clean(dest)
			}

			if dest != "" && parent != "." {
				dir, err := ar.Open(parent)
				if err != nil {
					return err
				}
				if err := dir.CreateDirAll(); err != nil {
					return err
				}
			}

			return ar.ArchiveWith(src, dest, opts)
		})
	},
}

func init() {
	archiveCmd.Flags().StringVarP(&archivePath, "archive", "a", "", "The path of the archive")
	archiveCmd.Flags().BoolVar(&archiveFollow, "follow", false, "Follow symbolic links")
	archiveCmd.Flags().BoolVar(&archiveNoRecursive, "no-recursive", false, "Don't copy directories recursively")
	archiveCmd.Flags().BoolVar(&archiveNoPreserve, "no-preserve", false, "Don't preserve permissions and modification times")
	archiveCmd.Flags().BoolVar(&archiveChildren, "children", false, "Copy the entries inside SOURCE instead of SOURCE itself")
	archiveCmd.MarkFlagRequired("archive")

	rootCmd.AddCommand(archiveCmd)
}
