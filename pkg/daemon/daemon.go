package daemon

import (
	"os"

	"github.com/sevlyar/go-daemon"
)

// WasReborn checks if the current process is a daemonized child by checking
// for an environment variable set by the go-daemon library.
func WasReborn() bool {
	return daemon.WasReborn()
}

// UnsetMark unsets the environment variable used to mark the child process.
// This should be called by the child process after it has been identified.
func UnsetMark() {
	os.Unsetenv(daemon.MARK_NAME)
}

// Daemonize forks the current process into a background daemon. It returns a
// non-nil process if it's the parent, and nil if it's the child. Long
// recovery runs use this so a dropped terminal does not kill the rebuild.
func Daemonize(pidFile, logFile string, args []string) (*os.Process, error) {
	// an empty logFile redirects to /dev/null
	if logFile == "" {
		logFile = os.DevNull
	}

	cntxt := &daemon.Context{
		PidFileName: pidFile,
		PidFilePerm: 0644,
		LogFileName: logFile,
		LogFilePerm: 0640,
		WorkDir:     "/",
		Umask:       027,
		Args:        args,
	}

	return cntxt.Reborn()
}

// ReadPidFile reads a PID from the given pid file.
func ReadPidFile(path string) (int, error) {
	return daemon.ReadPidFile(path)
}
