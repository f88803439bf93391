package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oddjobs/oj/internal/adapters/mock"
	"github.com/oddjobs/oj/internal/domain"
)

func TestRouterForReturnsRegisteredAdapter(t *testing.T) {
	r := NewRouter()
	m := mock.New()
	r.Register(domain.RuntimeLocalProcess, m)

	got, ok := r.For(domain.RuntimeLocalProcess)
	assert.True(t, ok)
	assert.Same(t, m, got)
}

func TestRouterForMissesUnregisteredRuntime(t *testing.T) {
	r := NewRouter()
	_, ok := r.For(domain.RuntimeDockerContainer)
	assert.False(t, ok)
}

func TestLogNotifierInvokesLogCallback(t *testing.T) {
	var gotOwner domain.OwnerID
	var gotMsg string
	n := LogNotifier{Log: func(owner domain.OwnerID, message string) {
		gotOwner = owner
		gotMsg = message
	}}

	err := n.Notify(context.Background(), domain.JobOwner("job-1"), "hello")
	assert.NoError(t, err)
	assert.Equal(t, domain.JobOwner("job-1"), gotOwner)
	assert.Equal(t, "hello", gotMsg)
}

func TestLogNotifierNoOpWithoutCallback(t *testing.T) {
	n := LogNotifier{}
	assert.NoError(t, n.Notify(context.Background(), domain.JobOwner("job-1"), "hello"))
}
