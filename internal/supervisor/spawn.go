package supervisor

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/runbook"
)

// ShellEvalTimeout bounds the local.*/source.* bash -c evaluation step
// below, per SPEC_FULL.md §6.8.
const ShellEvalTimeout = 10 * time.Second

// SpawnVars is the resolved variable set for one spawn: job/crew vars
// under var.*, the agent definition's own local.* entries (each
// evaluated through bash -c), and the bare/unscoped aliases spec.md §4.6.1
// requires for backward-compatible prompt templates.
type SpawnVars struct {
	Var   map[string]string
	Local map[string]string
}

// ResolveLocalVars evaluates every local.* entry in def through a bounded
// bash -c call, trimming the trailing newline, the same subprocess shape
// effects.Executor uses for job-step shells — the shell grammar itself is
// out of scope (spec.md §1), so this forwards verbatim rather than
// parsing.
func ResolveLocalVars(ctx context.Context, def runbook.AgentDef, cwd string) (map[string]string, error) {
	out := make(map[string]string, len(def.Local))
	for name, cmd := range def.Local {
		ctx, cancel := context.WithTimeout(ctx, ShellEvalTimeout)
		c := exec.CommandContext(ctx, "bash", "-c", cmd)
		c.Dir = cwd
		var stdout bytes.Buffer
		c.Stdout = &stdout
		if err := c.Run(); err != nil {
			cancel()
			return nil, err
		}
		cancel()
		out[name] = strings.TrimRight(stdout.String(), "\n")
	}
	return out, nil
}

// escapeForPrompt is the small allowlist-based escaper from SPEC_FULL.md
// §6.8: it only neutralises backticks and dollar-signs inside the
// rendered prompt text so that var interpolation can never break out into
// shell evaluation, without attempting to be a full shell parser.
func escapeForPrompt(s string) string {
	r := strings.NewReplacer("`", "\\`", "$", "\\$")
	return r.Replace(s)
}

// RenderPrompt substitutes {{var.NAME}}, {{NAME}}, and {{local.NAME}}
// placeholders in an agent definition's prompt template, per the
// var./bare/local.* namespacing discipline in spec.md §4.6.1.
func RenderPrompt(template string, vars SpawnVars) string {
	out := template
	for k, v := range vars.Var {
		v := escapeForPrompt(v)
		out = strings.ReplaceAll(out, "{{var."+k+"}}", v)
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	for k, v := range vars.Local {
		out = strings.ReplaceAll(out, "{{local."+k+"}}", escapeForPrompt(v))
	}
	return out
}

// BuildSpawnEffects renders an agent definition's prompt and returns the
// SpawnAgent effect that will start it, per spec.md §4.6.1.
func BuildSpawnEffects(ctx context.Context, owner domain.OwnerID, def runbook.AgentDef, jobVars map[string]string, cwd string) ([]effects.Effect, error) {
	local, err := ResolveLocalVars(ctx, def, cwd)
	if err != nil {
		return nil, err
	}
	prompt := RenderPrompt(def.Prompt, SpawnVars{Var: jobVars, Local: local})

	spec := adapters.SpawnSpec{
		Owner:   owner,
		Runtime: domain.AgentRuntime(def.Runtime),
		Prompt:  prompt,
		Cwd:     cwd,
		Env:     map[string]string{},
	}
	return []effects.Effect{effects.SpawnAgent{Owner: owner, Spec: spec}}, nil
}
