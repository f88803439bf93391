package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/runbook"
)

func TestRenderPromptSubstitutesVarAndBareAndLocalPlaceholders(t *testing.T) {
	out := RenderPrompt("deploy {{var.target}} as {{target}} using {{local.rev}}", SpawnVars{
		Var:   map[string]string{"target": "prod"},
		Local: map[string]string{"rev": "abc123"},
	})
	assert.Equal(t, "deploy prod as prod using abc123", out)
}

func TestRenderPromptEscapesShellMetacharacters(t *testing.T) {
	out := RenderPrompt("run {{var.cmd}}", SpawnVars{Var: map[string]string{"cmd": "`rm -rf $HOME`"}})
	assert.NotContains(t, out, "`rm")
	assert.Contains(t, out, "\\`")
	assert.Contains(t, out, "\\$HOME")
}

func TestResolveLocalVarsEvaluatesEachEntryThroughBash(t *testing.T) {
	def := runbook.AgentDef{Local: map[string]string{"greeting": "echo hello"}}
	out, err := ResolveLocalVars(context.Background(), def, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "hello", out["greeting"])
}

func TestResolveLocalVarsEmptyWhenNoLocalEntries(t *testing.T) {
	out, err := ResolveLocalVars(context.Background(), runbook.AgentDef{}, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBuildSpawnEffectsRendersPromptAndReturnsSpawnAgent(t *testing.T) {
	def := runbook.AgentDef{Runtime: "local_process", Prompt: "build {{var.target}}"}
	out, err := BuildSpawnEffects(context.Background(), domain.JobOwner("job-1"), def, map[string]string{"target": "prod"}, t.TempDir())
	require.NoError(t, err)
	require.Len(t, out, 1)
	spawn := out[0].(effects.SpawnAgent)
	assert.Equal(t, domain.JobOwner("job-1"), spawn.Owner)
	assert.Equal(t, domain.AgentRuntime("local_process"), spawn.Spec.Runtime)
	assert.Equal(t, "build prod", spawn.Spec.Prompt)
}
