package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

var verifyArchive string

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:     "verify",
	Aliases: []string{"fsck"},
	Short:   "Verify the data stored in an archive",
	Long: `Verifies the table layout of an archive and checks every entry
for broken invariants, such as files whose parent directory is missing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		return execArchive(verifyArchive, sqlar.OpenOptions{ReadOnly: true}, func(ar *sqlar.Archive) error {
			problems, err := ar.Verify()
			if err != nil {
				return err
			}

			for _, p := range problems {
				fmt.Fprintln(out, p)
			}
			if len(problems) > 0 {
				return userErrorf("archive check found %d problem(s)", len(problems))
			}

			fmt.Fprintln(out, "Archive check finished successfully")
			return nil
		})
	},
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyArchive, "archive", "a", "", "The path of the archive")
	verifyCmd.MarkFlagRequired("archive")

	rootCmd.AddCommand(verifyCmd)
}
