//go:build windows

package agent

import (
	"context"
	"os/exec"
)

func shellCommand(ctx context.Context, command, cwd string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "powershell.exe",
		"-NoLogo", "-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", command)
	cmd.Dir = cwd
	return cmd
}
