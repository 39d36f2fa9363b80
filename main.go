package main

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/yoogottamk/sqlarfs/cmd"
)

// prefixFormatter puts the program name in front of every log line
type prefixFormatter struct {
	prefix string
	next   log.Formatter
}

func (f prefixFormatter) Format(entry *log.Entry) ([]byte, error) {
	line, err := f.next.Format(entry)
	if err != nil {
		return nil, err
	}
	return append([]byte(f.prefix), line...), nil
}

func main() {
	var progName = filepath.Base(os.Args[0]) + ": "

	log.SetFormatter(prefixFormatter{
		prefix: progName,
		next:   &log.TextFormatter{DisableTimestamp: true},
	})
	log.SetOutput(os.Stderr)
	if os.Getenv("DEBUG") == "1" {
		log.SetLevel(log.DebugLevel)
	}

	cmd.Execute()
}
