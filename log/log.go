package log

import (
	"flag"
	"fmt"

	"k8s.io/klog/v2"
)

// debugVerbosity is the klog verbosity debug output is emitted at.
const debugVerbosity = 4

var debugOn = false

// Init configures klog for a foreground service: everything goes to stderr,
// debug lines are enabled only when debug is set.
func Init(debug bool) {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	_ = fs.Set("logtostderr", "true")
	if debug {
		_ = fs.Set("v", fmt.Sprint(debugVerbosity))
	}
	debugOn = debug
}

func Flush() {
	klog.Flush()
}

func Errorf(format string, args ...interface{}) {
	klog.ErrorDepth(1, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) {
	if debugOn {
		klog.V(debugVerbosity).InfoDepth(1, fmt.Sprintf(format, args...))
	}
}

func Infof(format string, args ...interface{}) {
	klog.InfoDepth(1, fmt.Sprintf(format, args...))
}

func Info(args ...interface{}) {
	klog.InfoDepth(1, args...)
}

func Error(args ...interface{}) {
	klog.ErrorDepth(1, args...)
}

func Debug(args ...interface{}) {
	if debugOn {
		klog.V(debugVerbosity).InfoDepth(1, args...)
	}
}

// InfoS emits a structured line, used for per-tick telemetry.
func InfoS(msg string, keysAndValues ...interface{}) {
	klog.InfoSDepth(1, msg, keysAndValues...)
}

// ErrorS emits a structured error line.
func ErrorS(err error, msg string, keysAndValues ...interface{}) {
	klog.ErrorSDepth(1, err, msg, keysAndValues...)
}
