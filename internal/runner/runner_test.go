package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/cchalm/aider-runner/internal/apikey"
	"github.com/cchalm/aider-runner/internal/config"
	"github.com/cchalm/aider-runner/internal/editor"
	"github.com/cchalm/aider-runner/internal/git"
	"github.com/cchalm/aider-runner/internal/git/gittest"
	"github.com/cchalm/aider-runner/internal/report"
	"github.com/cchalm/aider-runner/internal/workspace"
)

// fakeToolRunner records invocations and optionally writes files into the working directory to simulate edits
type fakeToolRunner struct {
	dir     string
	edits   map[string]string
	result  editor.Result
	err     error
	calls   int
	lastInv editor.Invocation
}

func (ftr *fakeToolRunner) Run(_ context.Context, _ editor.Tool, inv editor.Invocation) (editor.Result, error) {
	ftr.calls++
	ftr.lastInv = inv
	for path, content := range ftr.edits {
		if err := os.WriteFile(filepath.Join(ftr.dir, path), []byte(content), 0644); err != nil {
			return editor.Result{}, err
		}
	}
	return ftr.result, ftr.err
}

type fakeStatus struct {
	out   string
	err   error
	calls int
}

func (fs *fakeStatus) Status(context.Context) (string, error) {
	fs.calls++
	return fs.out, fs.err
}

type recordingPublisher struct {
	summaries []report.Summary
}

func (rp *recordingPublisher) Publish(_ context.Context, summary report.Summary) error {
	rp.summaries = append(rp.summaries, summary)
	return nil
}

type testEnv struct {
	dir    string
	fs     workspace.LocalFileSystem
	cfg    config.Config
	tool   *fakeToolRunner
	status *fakeStatus
	pub    *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	return &testEnv{
		dir:    dir,
		fs:     workspace.NewLocalFileSystem(dir),
		cfg:    config.Defaults(),
		tool:   &fakeToolRunner{dir: dir},
		status: &fakeStatus{},
		pub:    &recordingPublisher{},
	}
}

func (te *testEnv) write(t *testing.T, path string, content string) {
	t.Helper()
	full := filepath.Join(te.dir, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func (te *testEnv) read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(te.dir, path))
	require.NoError(t, err)
	return string(b)
}

func (te *testEnv) exists(path string) bool {
	_, err := os.Stat(filepath.Join(te.dir, path))
	return err == nil
}

func (te *testEnv) runner() *Runner {
	r := New(te.cfg, te.fs, editor.Aider{}, te.tool, te.status, noop.NewTracerProvider().Tracer("test"), te.pub)
	r.newRunID = func() string { return "run-test" }
	return r
}

func TestRun_NoValidFilesSkipsTool(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "files_to_modify.json", `["missing.ts", "also/missing.ts"]`)
	te.write(t, "aider_prompt.txt", "do things")

	outcome, err := te.runner().Run(context.Background())
	require.NoError(t, err)

	require.True(t, outcome.ToolSkipped)
	require.Equal(t, "false", te.read(t, "changes_made.txt"))
	require.Equal(t, 0, te.tool.calls)
	require.Equal(t, 0, te.status.calls)
	require.False(t, te.exists("prompt_for_aider.txt"))
	require.Len(t, outcome.Warnings, 2)

	require.Len(t, te.pub.summaries, 1)
	require.True(t, te.pub.summaries[0].ToolSkipped)
}

func TestRun_NoValidFilesDoesNotNeedPrompt(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "files_to_modify.json", `[]`)

	_, err := te.runner().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "false", te.read(t, "changes_made.txt"))
}

func TestRun_ZeroMatchPatternContributesNothing(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "files_to_modify.json", `["src/*.rs", "src/app.ts"]`)
	te.write(t, "src/app.ts", "export {}")
	te.write(t, "aider_prompt.txt", "do things")

	outcome, err := te.runner().Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"src/app.ts"}, te.tool.lastInv.Paths)
	require.Len(t, outcome.Warnings, 1)
	require.Equal(t, "src/*.rs", outcome.Warnings[0].Entry)
}

func TestRun_ChangesDetected(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "files_to_modify.json", `["src/*.ts"]`)
	te.write(t, "src/b.ts", "b")
	te.write(t, "src/a.ts", "a")
	te.write(t, "aider_prompt.txt", "rename everything")
	te.status.out = " M src/a.ts\n"

	outcome, err := te.runner().Run(context.Background())
	require.NoError(t, err)

	require.True(t, outcome.ChangesMade)
	require.Equal(t, "true", te.read(t, "changes_made.txt"))
	require.Equal(t, 1, te.tool.calls)
	require.Equal(t, []string{filepath.Join("src", "a.ts"), filepath.Join("src", "b.ts")}, te.tool.lastInv.Paths)
	require.Equal(t, "prompt_for_aider.txt", te.tool.lastInv.PromptPath)
	require.Equal(t, "rename everything", te.tool.lastInv.Prompt)
	require.Equal(t, "run-test", outcome.RunID)
}

func TestRun_NoChanges(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "files_to_modify.json", `["a.go"]`)
	te.write(t, "a.go", "package a")
	te.write(t, "aider_prompt.txt", "p")
	te.status.out = "\n"

	outcome, err := te.runner().Run(context.Background())
	require.NoError(t, err)
	require.False(t, outcome.ChangesMade)
	require.Equal(t, "false", te.read(t, "changes_made.txt"))
}

func TestRun_PromptCopyIsByteIdentical(t *testing.T) {
	te := newTestEnv(t)
	prompt := "Line one\r\nline two with unicode: é世\n\n  trailing spaces  \n"
	te.write(t, "files_to_modify.json", `["a.go"]`)
	te.write(t, "a.go", "package a")
	te.write(t, "aider_prompt.txt", prompt)

	_, err := te.runner().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, prompt, te.read(t, "prompt_for_aider.txt"))
}

func TestRun_ToolFailureIsNotFatal(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "files_to_modify.json", `["a.go"]`)
	te.write(t, "a.go", "package a")
	te.write(t, "aider_prompt.txt", "p")
	te.tool.result = editor.Result{ExitCode: 1, Stderr: "model overloaded"}
	te.tool.err = editor.ExternalToolError{Tool: "aider", ExitCode: 1}

	outcome, err := te.runner().Run(context.Background())
	require.NoError(t, err)
	require.Error(t, outcome.ToolErr)
	require.Equal(t, 1, outcome.ToolResult.ExitCode)
	require.Equal(t, "false", te.read(t, "changes_made.txt"))
	require.Equal(t, 1, te.status.calls)
}

func TestRun_ToolInterruptedIsFatal(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "files_to_modify.json", `["a.go"]`)
	te.write(t, "a.go", "package a")
	te.write(t, "aider_prompt.txt", "p")
	te.tool.err = context.Canceled

	_, err := te.runner().Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, te.exists("changes_made.txt"))
}

func TestRun_StatusFailureIsFatal(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "files_to_modify.json", `["a.go"]`)
	te.write(t, "a.go", "package a")
	te.write(t, "aider_prompt.txt", "p")
	te.status.err = errors.New("not a git repository")

	_, err := te.runner().Run(context.Background())
	require.Error(t, err)
	require.False(t, te.exists("changes_made.txt"))
}

func TestRun_MissingFileList(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "aider_prompt.txt", "p")

	_, err := te.runner().Run(context.Background())
	var configErr ConfigError
	require.True(t, errors.As(err, &configErr))
	require.Equal(t, "files_to_modify.json", configErr.Path)
	require.ErrorIs(t, err, workspace.ErrFileNotFound)
	require.False(t, te.exists("changes_made.txt"))
}

func TestRun_InvalidFileList(t *testing.T) {
	for _, content := range []string{`{"files": []}`, `not json`, `[1]`} {
		te := newTestEnv(t)
		te.write(t, "files_to_modify.json", content)
		te.write(t, "aider_prompt.txt", "p")

		_, err := te.runner().Run(context.Background())
		var configErr ConfigError
		require.True(t, errors.As(err, &configErr), "content %q", content)
	}
}

func TestRun_MissingPrompt(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "files_to_modify.json", `["a.go"]`)
	te.write(t, "a.go", "package a")

	_, err := te.runner().Run(context.Background())
	var configErr ConfigError
	require.True(t, errors.As(err, &configErr))
	require.Equal(t, "aider_prompt.txt", configErr.Path)
	require.Equal(t, 0, te.tool.calls)
}

func TestRun_DirectVariantRequiresAPIKey(t *testing.T) {
	te := newTestEnv(t)
	te.cfg.Variant = config.VariantDirect
	te.cfg.AnthropicAPIKey = ""
	te.write(t, "files_to_modify.json", `["a.go"]`)
	te.write(t, "aider_prompt.txt", "p")

	_, err := te.runner().Run(context.Background())
	var envErr apikey.EnvironmentError
	require.True(t, errors.As(err, &envErr))
	require.False(t, te.exists("changes_made.txt"))
	require.False(t, te.exists("prompt_for_aider.txt"))
	require.Equal(t, 0, te.tool.calls)
}

func TestRun_DirectVariantPassesListVerbatim(t *testing.T) {
	te := newTestEnv(t)
	te.cfg.Variant = config.VariantDirect
	te.cfg.AnthropicAPIKey = "sk-ant-test"
	te.write(t, "files_to_modify.json", `["does/not/exist.ts", "src/*.ts"]`)
	te.write(t, "aider_prompt.txt", "p")
	te.status.out = "?? new.ts\n"

	outcome, err := te.runner().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"does/not/exist.ts", "src/*.ts"}, te.tool.lastInv.Paths)
	require.Empty(t, outcome.Warnings)
	require.Equal(t, "true", te.read(t, "changes_made.txt"))
}

func TestRun_RecordsSpans(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "files_to_modify.json", `["a.go"]`)
	te.write(t, "a.go", "package a")
	te.write(t, "aider_prompt.txt", "p")

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	r := New(te.cfg, te.fs, editor.Aider{}, te.tool, te.status, tp.Tracer("test"))

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"runner.LoadFileList",
		"runner.ResolvePaths",
		"runner.LoadPrompt",
		"runner.PersistPrompt",
		"runner.InvokeTool",
		"runner.DetectChanges",
		"runner.PersistOutcome",
		"runner.Run",
	}, names)
}

func TestOwnFiles(t *testing.T) {
	cfg := config.Defaults()
	cfg.OutcomePath = "/abs/changes_made.txt"
	require.Equal(t, []string{"files_to_modify.json", "aider_prompt.txt", "prompt_for_aider.txt"}, OwnFiles(cfg))
}

func TestDisplayCommand(t *testing.T) {
	require.Equal(t, "aider --no-auto-commit --yes a.go", displayCommand("aider", []string{"--no-auto-commit", "--yes", "a.go"}))
	require.Equal(t, `claude -p "multi\nline"`, displayCommand("claude", []string{"-p", "multi\nline"}))
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "héé...", truncate("hééllo", 3))

	long := strings.Repeat("é", maxDisplayArgLen+5)
	shown := displayCommand("claude", []string{"-p", long})
	require.True(t, utf8.ValidString(shown))
	require.Contains(t, shown, strings.Repeat("é", maxDisplayArgLen)+"...")
}

// TestRun_EndToEnd runs a real git repository and a scripted stand-in for the editing tool
func TestRun_EndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	dir := gittest.InitRepo(t)
	// Input files are committed so that only the tool's edits and the runner's own outputs could dirty the tree
	writeFile(t, dir, "files_to_modify.json", `["tracked.txt", "*.md"]`)
	writeFile(t, dir, "aider_prompt.txt", "append a line\n")
	gittest.Git(t, dir, "add", ".")
	gittest.Git(t, dir, "commit", "--quiet", "-m", "inputs")

	toolsDir := t.TempDir()
	editing := filepath.Join(toolsDir, "editing-tool")
	writeFile(t, toolsDir, "editing-tool", "#!/bin/sh\nread line\necho \"$line\" >> tracked.txt\n")
	require.NoError(t, os.Chmod(editing, 0755))
	idle := filepath.Join(toolsDir, "idle-tool")
	writeFile(t, toolsDir, "idle-tool", "#!/bin/sh\ncat > /dev/null\necho nothing to do\n")
	require.NoError(t, os.Chmod(idle, 0755))

	cfg := config.Defaults()
	cfg.Timeout = 30 * time.Second
	fs := workspace.NewLocalFileSystem(dir)
	status := git.NewLocalRepo(dir, OwnFiles(cfg)...)
	toolRunner := editor.Runner{Dir: dir, Timeout: cfg.Timeout}
	tracer := noop.NewTracerProvider().Tracer("test")

	// A tool that edits nothing leaves the outcome false even though the runner wrote its own files
	outcome, err := New(cfg, fs, editor.Aider{Binary: idle}, toolRunner, status, tracer).Run(context.Background())
	require.NoError(t, err)
	require.False(t, outcome.ChangesMade, "status: %q", outcome.Status)
	require.Equal(t, "false", readFile(t, dir, "changes_made.txt"))
	require.Equal(t, "nothing to do\n", outcome.ToolResult.Stdout)

	// A tool that edits a tracked file flips the outcome to true
	outcome, err = New(cfg, fs, editor.Aider{Binary: editing}, toolRunner, status, tracer).Run(context.Background())
	require.NoError(t, err)
	require.True(t, outcome.ChangesMade)
	require.Equal(t, "true", readFile(t, dir, "changes_made.txt"))
	require.Equal(t, "original\nappend a line\n", readFile(t, dir, "tracked.txt"))
	require.Equal(t, []string{"tracked.txt"}, outcome.Paths)
}

func TestRun_OutcomeOutsideWorkTree(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	dir := gittest.InitRepo(t)
	work := filepath.Join(dir, "work")
	require.NoError(t, os.Mkdir(work, 0755))
	writeFile(t, work, "files_to_modify.json", `["../tracked.txt"]`)
	writeFile(t, work, "aider_prompt.txt", "leave it\n")
	gittest.Git(t, dir, "add", ".")
	gittest.Git(t, dir, "commit", "--quiet", "-m", "inputs")

	idle := filepath.Join(t.TempDir(), "idle-tool")
	require.NoError(t, os.WriteFile(idle, []byte("#!/bin/sh\ncat > /dev/null\n"), 0755))

	cfg := config.Defaults()
	cfg.OutcomePath = "../../changes_made.txt"
	fs := workspace.NewLocalFileSystem(work)
	status := git.NewLocalRepo(work, OwnFiles(cfg)...)
	toolRunner := editor.Runner{Dir: work}
	tracer := noop.NewTracerProvider().Tracer("test")

	outcome, err := New(cfg, fs, editor.Aider{Binary: idle}, toolRunner, status, tracer).Run(context.Background())
	require.NoError(t, err)
	require.False(t, outcome.ChangesMade, "status: %q", outcome.Status)
	require.Equal(t, "false", readFile(t, filepath.Dir(dir), "changes_made.txt"))
}

func writeFile(t *testing.T, dir string, name string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func readFile(t *testing.T, dir string, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(b)
}
