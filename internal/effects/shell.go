package effects

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/oddjobs/oj/internal/domain"
)

// execShell runs a job step's shell command via bash -c, the same
// subprocess shape supervisor.BuildSpawnEffects uses for local.*/source.*
// evaluation — the shell grammar itself is out of scope (spec.md §1), so
// this never parses the command, only forwards it to bash.
func (ex *Executor) execShell(ctx context.Context, eff Shell) {
	cmd := exec.CommandContext(ctx, "bash", "-c", eff.Cmd)
	cmd.Dir = eff.Cwd

	env := os.Environ()
	for k, v := range eff.Vars {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	ex.EmitNow(ctx, domain.Event{
		Kind: domain.KindShellExited,
		Payload: &domain.ShellExitedPayload{
			JobID:    eff.JobID,
			Step:     eff.Step,
			ExitCode: exitCode,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		},
	})
}
