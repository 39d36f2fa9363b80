package cmd

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yoogottamk/sqlarfs/pkg/fuse"
	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

var mountArchive string
var mountRoot string
var mountAllowOther bool

// mountCmd represents the mount command
//
// Mounts the archive read-only until unmounted or interrupted
var mountCmd = &cobra.Command{
	Use:   "mount [flags] MOUNTPOINT",
	Short: "Mount an archive as a read-only FUSE filesystem",
	Long: `Mounts an archive as a read-only FUSE filesystem.

Runs in the foreground until the filesystem is unmounted or the process is
interrupted. --root mounts a directory inside the archive instead of the
whole archive.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mountpoint := args[0]

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)

		go func() {
			sig, ok := <-sigs
			if !ok {
				return
			}
			log.Debugf("Received %v, unmounting", sig)
			if err := fuse.Unmount(mountpoint); err != nil {
				log.Printf("Couldn't unmount %s: %v", mountpoint, err)
			}
		}()

		opts := fuse.MountOptions{AllowOther: mountAllowOther}
		return execArchive(mountArchive, sqlar.OpenOptions{ReadOnly: true}, func(ar *sqlar.Archive) error {
			return fuse.Mount(ar, mountpoint, mountRoot, opts)
		})
	},
}

func init() {
	mountCmd.Flags().StringVarP(&mountArchive, "archive", "a", "", "The path of the archive")
	mountCmd.Flags().StringVar(&mountRoot, "root", "", "The directory in the archive to mount")
	mountCmd.Flags().BoolVar(&mountAllowOther, "allow-other", false, "Let other users access the mount")
	mountCmd.MarkFlagRequired("archive")

	rootCmd.AddCommand(mountCmd)
}
