package main

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddjobs/oj/pkg/ojproto"
)

func TestDefaultStateDirJoinsHomeLocalStateOj(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "state", "oj"), defaultStateDir())
}

func TestWriteFrameThenReadFrameRoundTrips(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	req, err := ojproto.NewRequest("req-1", "job.list", json.RawMessage("{}"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- writeFrame(client, req) }()

	got, err := readFrame(bufio.NewReader(server))
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, req.Action, got.Action)
}

func TestReadFullFillsBufferAcrossShortReads(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	payload := []byte("hello world")
	go func() {
		_, _ = client.Write(payload[:4])
		_, _ = client.Write(payload[4:])
	}()

	buf := make([]byte, len(payload))
	n, err := readFull(bufio.NewReader(server), buf)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)
}
