package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	fileLogger *log.Logger
	logFile    *os.File
	logPath    string
	verbose    bool
	mu         sync.Mutex
)

// InitLogger opens logs/audit_<timestamp>.log under dir (cwd when empty).
// Until it is called every level prints to stdout only.
func InitLogger(dir string) error {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("audit_%s.log", time.Now().Format("2006-01-02_15-04-05")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	logFile = f
	logPath = path
	fileLogger = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	return nil
}

// SetVerbose mirrors Debug output to the console.
func SetVerbose(v bool) {
	mu.Lock()
	verbose = v
	mu.Unlock()
}

func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
		fileLogger = nil
	}
}

func emit(level string, console bool, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		msg += "\n"
	}

	mu.Lock()
	defer mu.Unlock()
	if fileLogger != nil {
		fileLogger.Output(3, "["+level+"] "+msg)
	}
	if console || fileLogger == nil && level != "DEBUG" || verbose && level == "DEBUG" {
		fmt.Print("[" + level + "] " + msg)
	}
}

func Info(format string, v ...interface{}) {
	emit("INFO", true, format, v...)
}

// InfoFileOnly keeps progress chatter out of the console.
func InfoFileOnly(format string, v ...interface{}) {
	emit("INFO", false, format, v...)
}

func Warn(format string, v ...interface{}) {
	emit("WARN", true, format, v...)
}

func Error(format string, v ...interface{}) {
	emit("ERROR", true, format, v...)
}

func Debug(format string, v ...interface{}) {
	emit("DEBUG", false, format, v...)
}

func GetLogWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return io.Discard
	}
	return logFile
}
