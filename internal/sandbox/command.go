// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/vesselrun/vessel/internal/capability"
)

// shellMetacharacters are rejected in command arguments. Commands run without
// a shell, but arguments carrying shell syntax are a strong injection signal
// and are refused outright.
const shellMetacharacters = ";&|$`<>(){}\n"

// CommandResult reports one completed host command.
type CommandResult struct {
	ExitCode int
	Duration time.Duration
	Stdout   []byte
	Stderr   []byte
}

// ExecuteCommand runs a host command on the plugin's behalf. Requires the
// host.command capability; argument strings are validated against an
// injection-safety check before execution. The command runs without a shell,
// with the sandbox directory as its working directory. Duration and exit
// status are recorded.
func (m *Manager) ExecuteCommand(ctx context.Context, plugin string, argv []string) (*CommandResult, error) {
	sb, err := m.lookup(plugin)
	if err != nil {
		return nil, err
	}

	if err := m.requireCapability(ctx, sb, capability.HostCommand,
		fmt.Sprintf("host command %v denied: missing host.command", argv)); err != nil {
		return nil, err
	}

	if len(argv) == 0 {
		return nil, oops.Code(CodeUnsafeArgument).
			With("plugin", plugin).
			New("empty command")
	}
	for i, arg := range argv {
		if strings.ContainsAny(arg, shellMetacharacters) {
			m.violations.Append(ctx, plugin, ViolationSyscall, SeverityHigh,
				fmt.Sprintf("command argument %d contains shell metacharacters: %q", i, arg))
			return nil, oops.Code(CodeUnsafeArgument).
				With("plugin", plugin).
				With("argument", arg).
				With("index", i).
				New("command argument contains shell metacharacters")
		}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- argv validated against shell metacharacters above
	cmd.Dir = sb.workDir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	result := &CommandResult{
		Duration: time.Since(start),
		Stdout:   []byte(stdout.String()),
		Stderr:   []byte(stderr.String()),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, oops.Code(CodeIsolationSetup).
				With("plugin", plugin).
				With("command", argv[0]).
				Hint("command failed to start").
				Wrap(runErr)
		}
	}

	commandExecutions.WithLabelValues(plugin, exitStatus(result.ExitCode)).Inc()
	slog.Debug("host command executed",
		"plugin", plugin,
		"command", argv[0],
		"exit_code", result.ExitCode,
		"duration", result.Duration)
	return result, nil
}

func exitStatus(code int) string {
	if code == 0 {
		return "success"
	}
	return "failure"
}
