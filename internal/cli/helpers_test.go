package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// changes is replication input for the backup "user.anne": four APPLY
// records, one of them with a lower-case command, and one RESERVE.
const changes = `1000 APPLY MAILBOX %(UNIQUEID u1 MBOXNAME user.anne)
1001 APPLY SUB %(USERID anne MBOXNAME user.anne)
1002 RESERVE MAILBOX %(UNIQUEID u2 MBOXNAME user.anne.Sent)
1003 APPLY mailbox %(UNIQUEID u2 MBOXNAME user.anne.Sent)
1004 APPLY RENAME %(OLDMBOXNAME user.anne.Sent NEWMBOXNAME user.anne.Drafts)
`

type runResult struct {
	stdout string
	stderr string
	err    error
}

// run executes the CLI with args and stdin.
func run(t *testing.T, stdin string, args ...string) runResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return runResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// mustRun executes the CLI and fails the test on error.
func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	res := run(t, stdin, args...)
	require.NoError(t, res.err, "stderr: %s", res.stderr)
	return res.stdout
}

// workdir moves the test into a fresh directory so backup names, and the
// output that repeats them, do not depend on the temp path.
func workdir(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

// populated creates user.anne and appends changes to it.
func populated(t *testing.T) {
	t.Helper()
	workdir(t)
	mustRun(t, "", "create", "user.anne")
	mustRun(t, changes, "append", "user.anne")
}

// goldenDir is resolved before any test changes directory.
var goldenDir = func() string {
	dir, err := filepath.Abs(filepath.Join("testdata", "golden"))
	if err != nil {
		panic(err)
	}
	return dir
}()

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir(goldenDir),
		goldie.WithNameSuffix(".golden"),
	)
}

// decode parses a JSON response and its data into data.
func decode(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw))
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.CLIResponse
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
