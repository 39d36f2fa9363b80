package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

var createArchive string
var createFollow bool
var createNoRecursive bool
var createNoPreserve bool

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create [flags] [SOURCE...]",
	Short: "Create a new archive",
	Long: `Creates a new archive from the given files.

Each source is stored at the top of the archive under its file name. With a
single source the archive defaults to <name>.sqlar in the current directory;
otherwise --archive is required. The archive must not already exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := createArchivePath(args)
		if err != nil {
			return err
		}

		opts := sqlar.NewArchiveOptions().
			FollowSymlinks(createFollow).
			Recursive(!createNoRecursive).
			PreserveMetadata(!createNoPreserve)

		return execArchive(path, sqlar.OpenOptions{CreateNew: true}, func(ar *sqlar.Archive) error {
			for _, src := range args {
				name, err := sourceName(src)
				if err != nil {
					return err
				}
				if err := ar.ArchiveWith(src, name, opts); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

// createArchivePath picks the archive to create for the given sources
func createArchivePath(sources []string) (string, error) {
	if createArchive != "" {
		return createArchive, nil
	}

	switch len(sources) {
	case 0:
		return "", userErrorf("when no files are being added, --archive must be given")
	case 1:
		name, err := sourceName(sources[0])
		if err != nil {
			return "", err
		}
		return name + sqlarExtension, nil
	}

	return "", userErrorf("when archiving multiple files, --archive must be given")
}

func init() {
	createCmd.Flags().StringVarP(&createArchive, "archive", "a", "", "The path of the archive to create")
	createCmd.Flags().BoolVar(&createFollow, "follow", false, "Follow symbolic links")
	createCmd.Flags().BoolVar(&createNoRecursive, "no-recursive", false, "Don't copy directories recursively")
	createCmd.Flags().BoolVar(&createNoPreserve, "no-preserve", false, "Don't preserve permissions and modification times")

	rootCmd.AddCommand(createCmd)
}
