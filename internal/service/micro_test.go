package service

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/nats-io/nats.go/micro"
	"github.com/stretchr/testify/require"
)

// replyRecorder captures what a handler sends back for a single request.
type replyRecorder struct {
	micro.Request

	subject string
	data    []byte

	replied     int
	response    []byte
	code        string
	description string
}

func (r *replyRecorder) Subject() string { return r.subject }
func (r *replyRecorder) Data() []byte    { return r.data }

func (r *replyRecorder) Respond(data []byte, _ ...micro.RespondOpt) error {
	r.replied++
	r.response = data
	return nil
}

func (r *replyRecorder) RespondJSON(v any, _ ...micro.RespondOpt) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Respond(data)
}

func (r *replyRecorder) Error(code, description string, data []byte, _ ...micro.RespondOpt) error {
	r.replied++
	r.code = code
	r.description = description
	r.response = data
	return nil
}

func callEndpoint(t *testing.T, fn func(r micro.Request, probe Probe) (any, error), data string) *replyRecorder {
	t.Helper()

	req := &replyRecorder{subject: "PROBE.TEST", data: []byte(data)}
	microLogHandler(newTestProbe(t), testLogger(), fn).Handle(req)
	require.Equal(t, 1, req.replied, "exactly one reply per request")
	return req
}

func TestMicroHealth(t *testing.T) {
	req := callEndpoint(t, health, "")
	require.Empty(t, req.code)
	require.Equal(t, "OK", string(req.response))
}

func TestMicroExec(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		want        *RunResult
		code        string
		description string
	}{
		{
			name: "runs",
			data: `{"command": "echo hello #world"}`,
			want: &RunResult{Stdout: "hello #world\n"},
		},
		{
			name:        "missing command",
			data:        `{}`,
			code:        "400",
			description: "missing command parameter",
		},
		{
			name:        "invalid json",
			data:        `{"command":`,
			code:        "400",
			description: "invalid request: unexpected end of JSON input",
		},
		{
			name:        "command not found",
			data:        `{"command": "bleh-not-a-command"}`,
			code:        "500",
			description: `error running command "bleh-not-a-command": exec: "bleh-not-a-command": executable file not found in $PATH`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := callEndpoint(t, runCommand, test.data)
			require.Equal(t, test.code, req.code)
			require.Equal(t, test.description, req.description)
			if test.want == nil {
				return
			}

			var got RunResult
			require.NoError(t, json.Unmarshal(req.response, &got))
			require.Equal(t, *test.want, got)
		})
	}
}

func TestMicroWriteThenRead(t *testing.T) {
	name := filepath.Join(t.TempDir(), "nested", "hello.txt")

	data, err := json.Marshal(map[string]string{"path": name, "content": "héllo"})
	require.NoError(t, err)
	req := callEndpoint(t, writeFile, string(data))
	require.Empty(t, req.code, req.description)

	var written WriteResult
	require.NoError(t, json.Unmarshal(req.response, &written))
	require.Equal(t, WriteResult{Status: "written", File: name, Bytes: 5}, written)

	data, err = json.Marshal(map[string]string{"path": name})
	require.NoError(t, err)
	req = callEndpoint(t, readFile, string(data))
	require.Empty(t, req.code, req.description)

	var read FileContent
	require.NoError(t, json.Unmarshal(req.response, &read))
	require.Equal(t, FileContent{File: name, Size: 5, Content: "héllo"}, read)
}

func TestMicroWriteEmptyContent(t *testing.T) {
	name := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(name, []byte("old"), 0o644))

	data, err := json.Marshal(map[string]string{"path": name, "content": ""})
	require.NoError(t, err)
	req := callEndpoint(t, writeFile, string(data))
	require.Empty(t, req.code, req.description)

	got, err := os.ReadFile(name)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMicroFileErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name        string
		fn          func(r micro.Request, probe Probe) (any, error)
		data        string
		code        string
		description string
	}{
		{
			name:        "read without path",
			fn:          readFile,
			data:        `{}`,
			code:        "400",
			description: "missing path parameter",
		},
		{
			name:        "read missing file",
			fn:          readFile,
			data:        `{"path": "` + filepath.Join(dir, "missing.txt") + `"}`,
			code:        "404",
			description: "file not found: " + filepath.Join(dir, "missing.txt"),
		},
		{
			name:        "read invalid json",
			fn:          readFile,
			data:        `[]`,
			code:        "400",
			description: "invalid request: json: cannot unmarshal array into Go value of type service.ReadFileRequest",
		},
		{
			name:        "write without path",
			fn:          writeFile,
			data:        `{"content": "x"}`,
			code:        "400",
			description: "missing path parameter",
		},
		{
			name:        "write without content",
			fn:          writeFile,
			data:        `{"path": "` + filepath.Join(dir, "x.txt") + `"}`,
			code:        "400",
			description: "missing content parameter",
		},
		{
			name:        "write to a directory",
			fn:          writeFile,
			data:        `{"path": "` + dir + `", "content": "x"}`,
			code:        "400",
			description: "cannot write to directory: " + dir,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := callEndpoint(t, test.fn, test.data)
			require.Equal(t, test.code, req.code)
			require.Equal(t, test.description, req.description)
		})
	}
}
