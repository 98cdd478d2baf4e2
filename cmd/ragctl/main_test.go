package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacticalcatboy/legit-rag/engine/evaluate"
	"github.com/tacticalcatboy/legit-rag/engine/ledger"
)

func offlineEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("LEGITRAG_PIPELINE_MODE", "rules")
	t.Setenv("LEGITRAG_PIPELINE_EMBEDDER", "hash")
	t.Setenv("LEGITRAG_STORE_BACKEND", "memory")
	t.Setenv("LEGITRAG_LEDGER_BACKEND", "file")
	t.Setenv("LEGITRAG_LEDGER_DIR", filepath.Join(dir, "logs"))
	color.NoColor = true
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

var workflowLine = regexp.MustCompile(`Workflow: (\S+)`)

func TestIngestCommand(t *testing.T) {
	dir := offlineEnv(t)
	path := filepath.Join(dir, "corpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`documents:
  - text: The Python programming language was created by Guido van Rossum.
    metadata: {source: wiki}
  - text: OpenAI was founded in 2015.
`), 0o644))

	out, err := execute(t, "ingest", path, "--offset", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "ingested 2 documents")
}

func TestIngestCommandMissingFile(t *testing.T) {
	offlineEnv(t)
	_, err := execute(t, "ingest", "nope.json")
	assert.Error(t, err)
}

func TestAskThenInspect(t *testing.T) {
	offlineEnv(t)

	out, err := execute(t, "ask", "Who", "created", "the", "Python", "language?")
	require.NoError(t, err)
	assert.Contains(t, out, "Outcome:  insufficient")
	m := workflowLine.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	id := m[1]

	out, err = execute(t, "logs")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = execute(t, "logs", "--id", id)
	require.NoError(t, err)
	for _, step := range []string{"router", "reformulator", "retriever", "completion_checker"} {
		assert.Contains(t, out, step)
	}
	assert.NotContains(t, out, "answer_generator")

	out, err = execute(t, "stats", "--since", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "insufficient")

	out, err = execute(t, "export", "--step", "router")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var ex ledger.Example
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ex))
	assert.Equal(t, id, ex.WorkflowID)
	assert.Equal(t, "router", ex.StepName)

	out, err = execute(t, "evaluate", id)
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(out), "mean")

	_, err = execute(t, "evaluate", id, "--llm")
	assert.ErrorContains(t, err, "pipeline.mode=llm")
}

func TestRenderReport(t *testing.T) {
	color.NoColor = true
	out := renderReport(evaluate.Report{
		Steps: []evaluate.Evaluation{{StepName: "router", Score: 1, Feedback: "intent is valid"}},
		Mean:  1,
	})
	assert.Contains(t, out, "router")
	assert.Contains(t, out, "1.00")
	assert.Contains(t, out, "intent is valid")
}

func TestOutcomeAndScoreText(t *testing.T) {
	color.NoColor = true
	assert.Equal(t, "done", outcome("done"))
	assert.Equal(t, "0.25", score(0.25))
	assert.Equal(t, "failed", status(false))
}

func TestWatchNeedsNATS(t *testing.T) {
	offlineEnv(t)
	_, err := execute(t, "watch")
	assert.ErrorContains(t, err, "nats_url")
}
