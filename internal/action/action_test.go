package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferr "fleetctl/internal/errors"
	"fleetctl/internal/transport/transporttest"
)

func TestRemoteCommand_PassesTextVerbatim(t *testing.T) {
	fake := &transporttest.Fake{Responses: map[int]transporttest.Response{
		10: {Output: "up 3 days\n"},
	}}
	cmd := `uptime; echo "$HOSTNAME" | tr a-z A-Z > /tmp/x`

	out, err := (&RemoteCommand{Command: cmd}).Run(context.Background(), fake, 10)
	require.NoError(t, err)
	assert.Equal(t, "up 3 days\n", out)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "exec", calls[0].Op)
	assert.Equal(t, cmd, calls[0].Command)
}

func TestRemoteCommand_PropagatesRemoteFailure(t *testing.T) {
	fake := &transporttest.Fake{Responses: map[int]transporttest.Response{
		11: {Output: "boom\n", ExitStatus: 2},
	}}

	out, err := (&RemoteCommand{Command: "false"}).Run(context.Background(), fake, 11)
	assert.True(t, ferr.IsRemoteFailure(err))
	assert.Equal(t, "boom\n", out)
}

func TestCopyFile_CountsBytes(t *testing.T) {
	fake := &transporttest.Fake{Responses: map[int]transporttest.Response{
		10: {Output: "12345"},
		11: {Unreachable: true},
	}}
	var total int64
	cp := &CopyFile{LocalPath: "/tmp/a", RemotePath: "/opt/a", Bytes: func(n int64) { total += n }}

	out, err := cp.Run(context.Background(), fake, 10)
	require.NoError(t, err)
	assert.Equal(t, "5 bytes -> /opt/a", out)

	_, err = cp.Run(context.Background(), fake, 11)
	assert.True(t, ferr.IsUnreachable(err))
	assert.EqualValues(t, 5, total)
	assert.Equal(t, "copy", cp.Name())
}
