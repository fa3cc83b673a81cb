package agent

import (
	"context"
	"os/exec"
)

// Launcher builds the process that runs one command. Cancelling ctx must
// kill the process and everything it spawned.
type Launcher interface {
	Command(ctx context.Context, command, cwd string) *exec.Cmd
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, command, cwd string) *exec.Cmd

func (f LauncherFunc) Command(ctx context.Context, command, cwd string) *exec.Cmd {
	return f(ctx, command, cwd)
}

// Shell returns the launcher for the current platform: PowerShell on
// Windows, a login sh elsewhere.
func Shell() Launcher {
	return LauncherFunc(shellCommand)
}
