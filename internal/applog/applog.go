// Package applog initializes the application-level logger: a single
// structured logrus logger so debug mode can raise the level without
// juggling independent *log.Logger values.
package applog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. It is safe for concurrent use by
// multiple pipeline workers.
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   false,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	Log.SetLevel(logrus.WarnLevel)
}

// Init configures the logger's verbosity. Passing debug=true matches the
// CLI's -d/--debug flag.
func Init(debug bool) {
	if debug {
		Log.SetLevel(logrus.DebugLevel)
	} else {
		Log.SetLevel(logrus.WarnLevel)
	}
}
