package cmd

import (
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

var extractArchive string
var extractSources []string
var extractNoRecursive bool

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract [flags] [DEST]",
	Short: "Extract files or directories from an archive",
	Long: `Extracts files or directories from an archive into DEST.

Unless --source is given, the whole archive is extracted. Each --source is
extracted into DEST under its file name. DEST defaults to the current
directory and must already exist.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest := "."
		if len(args) == 1 {
			dest = args[0]
		}

		return execArchive(extractArchive, sqlar.OpenOptions{ReadOnly: true}, func(ar *sqlar.Archive) error {
			if len(extractSources) == 0 {
				opts := sqlar.NewExtractOptions().Children(true).Recursive(!extractNoRecursive)
				return ar.ExtractWith("", dest, opts)
			}

			opts := sqlar.NewExtractOptions().Recursive(!extractNoRecursive)
			for _, src := range extractSources {
				name := path.Base(path.Clean(src))
				if name == "." || name == "/" {
					return userErrorf("the source path must have a file name: %s", src)
				}
				if err := ar.ExtractWith(src, filepath.Join(dest, name), opts); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractArchive, "archive", "a", "", "The path of the archive")
	extractCmd.Flags().StringArrayVarP(&extractSources, "source", "s", nil, "A file or directory in the archive to extract (repeatable)")
	extractCmd.Flags().BoolVar(&extractNoRecursive, "no-recursive", false, "Don't extract directories recursively")
	extractCmd.MarkFlagRequired("archive")

	rootCmd.AddCommand(extractCmd)
}
