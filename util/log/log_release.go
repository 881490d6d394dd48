//go:build release

package log

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// stateDirEnv names the environment variable read once, at package init,
// to choose the log directory; when it is unset the user cache directory
// is used. The config's state-dir knob does not feed it. Defaulting here rather
// than importing internal/config avoids a config<->log import cycle,
// matching the teacher's pattern of keeping util/log dependency-free of
// the rest of the module graph.
const stateDirEnv = "FRAME_STATE_DIR"

const (
	logSubDir = "lumenframe"
	logExt    = ".log"
)

func init() {
	logDir := os.Getenv(stateDirEnv)
	if logDir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			log.Fatalf("failed to determine log directory: %v", err)
		}
		logDir = filepath.Join(cacheDir, logSubDir)
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Fatalf("failed to create log directory: %v", err)
	}

	logFilePath := filepath.Join(logDir, "frame"+logExt)

	log.SetOutput(&lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    10, // MB
		MaxBackups: 2,
		MaxAge:     28, // days
		Compress:   true,
	})
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
}

// Print calls the standard log.Print()
func Print(v ...interface{}) {
	log.Output(2, fmt.Sprint(v...))
}

// Printf calls the standard log.Printf()
func Printf(format string, v ...interface{}) {
	log.Output(2, fmt.Sprintf(format, v...))
}

// Println calls the standard log.Println()
func Println(v ...interface{}) {
	log.Output(2, fmt.Sprintln(v...))
}

// Fatal calls the standard log.Fatal()
func Fatal(v ...interface{}) {
	log.Output(2, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf calls the standard log.Fatalf()
func Fatalf(format string, v ...interface{}) {
	log.Output(2, fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Fatalln calls the standard log.Fatalln()
func Fatalln(v ...interface{}) {
	log.Output(2, fmt.Sprintln(v...))
	os.Exit(1)
}

// Debug is a no-op in release builds.
func Debug(v ...interface{}) {
}

// Debugf is a no-op in release builds.
func Debugf(format string, v ...interface{}) {
}
