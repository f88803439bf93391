package listener

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddjobs/oj/pkg/ojproto"
)

func TestWriteFrameThenReadFrameRoundTrips(t *testing.T) {
	msg, err := ojproto.NewRequest("req-1", ojproto.ActionJobList, map[string]string{"project": "oj"})
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, writeFrame(&buf, msg))

	out, err := readFrame(bufio.NewReader(strings.NewReader(buf.String())))
	require.NoError(t, err)
	assert.Equal(t, msg.ID, out.ID)
	assert.Equal(t, msg.Action, out.Action)
	assert.Equal(t, msg.Type, out.Type)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	// A length prefix claiming more than maxFrameSize must be rejected
	// before any allocation happens.
	raw := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	_, err := readFrame(bufio.NewReader(strings.NewReader(string(raw))))
	assert.Error(t, err)
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x00, 0x00}
	_, err := readFrame(bufio.NewReader(strings.NewReader(string(raw))))
	assert.Error(t, err)
}
