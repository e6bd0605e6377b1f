package logging

import (
	"fmt"
	"io"
	"log"
	"os"
)

type LogLevel int

const (
	LogLevelError   LogLevel = 0
	LogLevelWarning LogLevel = 1
	LogLevelInfo    LogLevel = 2
	LogLevelDebug   LogLevel = 3
)

var logLevel = LogLevelError

func SetLogLevel(newLevel int) {
	logLevel = LogLevel(newLevel)
}

func SetLogFile(logFile io.Writer) {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	logOutput := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(logOutput)
}

func logf(level LogLevel, tag string, format string, args ...interface{}) {
	if logLevel >= level {
		log.Printf(fmt.Sprintf("[%s] %s", tag, format), args...)
	}
}

func logln(level LogLevel, tag string, args ...interface{}) {
	if logLevel >= level {
		args = append([]interface{}{fmt.Sprintf("[%s]", tag)}, args...)
		log.Println(args...)
	}
}

func Fatal(args ...interface{}) {
	log.Fatal(args...)
}

func Fatalf(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	logf(LogLevelDebug, "DEBUG", format, args...)
}

func Infof(format string, args ...interface{}) {
	logf(LogLevelInfo, "INFO", format, args...)
}

func Warnf(format string, args ...interface{}) {
	logf(LogLevelWarning, "WARN", format, args...)
}

func Errorf(format string, args ...interface{}) {
	logf(LogLevelError, "ERROR", format, args...)
}

func Debugln(args ...interface{}) {
	logln(LogLevelDebug, "DEBUG", args...)
}

func Infoln(args ...interface{}) {
	logln(LogLevelInfo, "INFO", args...)
}

func Warnln(args ...interface{}) {
	logln(LogLevelWarning, "WARN", args...)
}

func Errorln(args ...interface{}) {
	logln(LogLevelError, "ERROR", args...)
}

func SetupTestLogs() {
	logLevel = LogLevelDebug
}
