package cmd

import (
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

var debug bool
var umaskFlag string

// umask is the parsed --umask, set before any subcommand runs
var umask sqlar.FileMode

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sqlarfs",
	Short: "Work with SQLite archives",
	Long: `Create, inspect, extract and mount SQLite archives.

An archive is a SQLite database holding a single sqlar table, the format
used by the sqlite3 command line shell.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// setup applies the persistent flags
func setup(cmd *cobra.Command, args []string) error {
	if debug || os.Getenv("DEBUG") == "1" {
		log.SetLevel(log.DebugLevel)
	}

	if umaskFlag == "" {
		umask = processUmask()
		return nil
	}

	parsed, err := strconv.ParseUint(umaskFlag, 8, 32)
	if err != nil || sqlar.FileMode(parsed)&^sqlar.ModeMask != 0 {
		return userErrorf("invalid umask %q, expected an octal mode like 022", umaskFlag)
	}
	umask = sqlar.FileMode(parsed)

	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log debugging output (same as DEBUG=1)")
	rootCmd.PersistentFlags().StringVar(&umaskFlag, "umask", "",
		fmt.Sprintf("Octal umask for entries created in the archive (default: the process umask, or %03o)", uint32(sqlar.DefaultUmask)))
}
