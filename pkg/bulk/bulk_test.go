package bulk

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opendeckmcp/pkg/midiport"
	"opendeckmcp/pkg/opendeck"
	"opendeckmcp/pkg/queue"
)

var (
	marker = []byte{0xF0, 0x00, 0x53, 0x43, 0x01, 0x00, 0x1B, 0xF7}
	frameB = []byte{0xF0, 0x00, 0x53, 0x43, 0x00, 0x7F, 0x01, 0x00, 0x01, 0x00, 0x02, 0x05, 0xF7}
	frameC = []byte{0xF0, 0x00, 0x53, 0x43, 0x00, 0x7F, 0x01, 0x00, 0x01, 0x00, 0x03, 0x06, 0xF7}
)

func newQueue(t *testing.T) (*queue.Queue, *midiport.FakeInput, *midiport.FakeOutput) {
	f := midiport.NewFake()
	in := f.AddInput("OpenDeck")
	out := f.AddOutput("OpenDeck")
	q := queue.New(out, queue.WithDefaultTimeout(100*time.Millisecond))
	require.NoError(t, q.Listen(in))
	t.Cleanup(q.Close)
	return q, in, out
}

func TestBackupCollector(t *testing.T) {
	var c BackupCollector
	resp := func(b []byte) opendeck.Response {
		r, err := opendeck.ParseResponse(b)
		require.NoError(t, err)
		return r
	}

	assert.False(t, c.Handle(resp(marker)))
	assert.False(t, c.Handle(resp(frameB)))
	assert.False(t, c.Handle(resp(frameC)))
	assert.False(t, c.Done())
	assert.True(t, c.Handle(resp(marker)))
	assert.True(t, c.Done())

	assert.Equal(t, [][]byte{frameB, frameC}, c.Frames())
}

func TestBackup(t *testing.T) {
	q, in, out := newQueue(t)
	out.Respond(func([]byte) {
		for _, f := range [][]byte{marker, frameB, frameC, marker} {
			in.Emit(f)
		}
	})

	var buf bytes.Buffer
	n, err := Backup(context.Background(), q, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t,
		"F0 00 53 43 00 7F 01 00 01 00 02 05 F7\n"+
			"F0 00 53 43 00 7F 01 00 01 00 03 06 F7\n",
		buf.String())

	frames, err := ReadFrames(&buf)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{frameB, frameC}, frames)
}

func TestBackupAbortedMidStream(t *testing.T) {
	q, in, out := newQueue(t)
	out.Respond(func([]byte) {
		in.Emit(marker)
		in.Emit(frameB)
	})

	var buf bytes.Buffer
	_, err := Backup(context.Background(), q, &buf)
	require.ErrorIs(t, err, ErrStreamAborted)
	assert.ErrorIs(t, err, queue.ErrRequestTimedOut)

	var aborted *StreamAbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, 1, aborted.Sent)
	assert.Empty(t, buf.String())
}

func TestReadFrames(t *testing.T) {
	input := strings.Join([]string{
		"# OpenDeck backup",
		"",
		"F0 00 53 43 00 7F 01 F7",
		"00 53 43 00 7F 02",
		"  0xF0,0x00,0x53,0x43,0x00,0x7F,0x03,0xF7  ",
	}, "\n")

	frames, err := ReadFrames(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{
		{0xF0, 0x00, 0x53, 0x43, 0x00, 0x7F, 0x01, 0xF7},
		{0xF0, 0x00, 0x53, 0x43, 0x00, 0x7F, 0x02, 0xF7},
		{0xF0, 0x00, 0x53, 0x43, 0x00, 0x7F, 0x03, 0xF7},
	}, frames)

	_, err = ReadFrames(strings.NewReader("F0 zz F7"))
	assert.ErrorContains(t, err, "line 1")
}

func TestUpload(t *testing.T) {
	q, _, out := newQueue(t)
	frames := [][]byte{frameB, frameC, marker}

	start := time.Now()
	require.NoError(t, Upload(context.Background(), q, opendeck.RestoreBackup, frames, 5*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, frames, out.Sent())
}

func TestUploadAbortsOnWriteFailure(t *testing.T) {
	q, _, out := newQueue(t)
	out.FailSend(errors.New("unplugged"))

	err := Upload(context.Background(), q, opendeck.FirmwareUpdate, [][]byte{frameB, frameC}, time.Millisecond)
	require.ErrorIs(t, err, ErrStreamAborted)
	assert.ErrorIs(t, err, queue.ErrTransportWriteFailed)

	var aborted *StreamAbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, 0, aborted.Sent)
	assert.Equal(t, 2, aborted.Total)
}

func TestUploadCancelled(t *testing.T) {
	q, _, out := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Upload(ctx, q, opendeck.RestoreBackup, [][]byte{frameB, frameC}, time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.Sent())
}
