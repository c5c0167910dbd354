package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// stopPollInterval and stopPollAttempts bound the wait for a graceful exit.
const (
	stopPollInterval = 200 * time.Millisecond
	stopPollAttempts = 50
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running gate",
	Long: `Stop a running admission-gate by reading its PID file and sending SIGTERM.

The PID file is located at ~/.admission-gate/server.pid.

Examples:
  # Stop the running gate
  admission-gate stop`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	return stopProcess(pidFilePath(), cmd.ErrOrStderr())
}

func stopProcess(pidPath string, out io.Writer) error {
	pid := readPIDFile(pidPath)
	if pid == 0 {
		return fmt.Errorf("no PID file found at %s\nIs the gate running?", pidPath)
	}

	if !isRunning(pid) {
		os.Remove(pidPath)
		return fmt.Errorf("gate process %d is not running (stale PID file removed)", pid)
	}

	fmt.Fprintf(out, "Stopping admission-gate (PID %d)...\n", pid)
	if err := terminate(pid); err != nil {
		return fmt.Errorf("failed to stop gate: %w", err)
	}

	for i := 0; i < stopPollAttempts; i++ {
		time.Sleep(stopPollInterval)
		if !isRunning(pid) {
			os.Remove(pidPath)
			fmt.Fprintf(out, "Gate stopped.\n")
			return nil
		}
	}

	return fmt.Errorf("gate process %d did not exit within %s", pid, stopPollInterval*stopPollAttempts)
}
