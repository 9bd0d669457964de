package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// cmdLaunch starts stepcapd detached from this terminal and waits for it
// to answer.
func cmdLaunch(args []string) error {
	if s, err := connect(context.Background()); err == nil {
		s.Close()
		return errors.New("stepcapd is already running")
	}

	bin, err := daemonBinary()
	if err != nil {
		return err
	}
	if *configPath != "" {
		args = append([]string{"-config", *configPath}, args...)
	}
	cmd := exec.Command(bin, args...)
	cmd.SysProcAttr = getDaemonSysProcAttr()
	if *socketPath != "" {
		cmd.Env = append(os.Environ(), "STEPCAP_SOCKET="+*socketPath)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start stepcapd: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s, err := connect(context.Background()); err == nil {
			s.Close()
			fmt.Printf("%sstepcapd started%s (PID %d)\n", c.Green, c.Reset, pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("stepcapd (PID %d) did not answer within 5s, check its log", pid)
}

// daemonBinary looks for stepcapd next to this executable, then on PATH.
func daemonBinary() (string, error) {
	name := "stepcapd"
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name+exeSuffix)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("stepcapd not found next to stepcapctl or on PATH: %w", err)
	}
	return path, nil
}
