package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig points storage at a fresh SQLite file and returns the config path
func writeTestConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	content := fmt.Sprintf(`storage:
  driver: sqlite
  sqlite_path: %s
logging:
  level: error
  format: text
  output: stderr
`, filepath.Join(dir, "tracker.db"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, configPath string, args ...string) string {
	t.Helper()
	out, err := run(t, configPath, args...)
	require.NoError(t, err, out)
	return out
}

func TestStageCommands(t *testing.T) {
	cfg := writeTestConfig(t)

	// Act
	out := mustRun(t, cfg, "stage", "add", "--name", "Atropine", "--start", "2024-01-01", "--end", "2024-06-30", "--plan", "0.01% nightly")

	// Assert
	assert.Contains(t, out, `Created stage 20240101-01 "Atropine" (2024-01-01 .. 2024-06-30)`)

	out = mustRun(t, cfg, "stage", "list")
	assert.Contains(t, out, "20240101-01")
	assert.Contains(t, out, "0.01% nightly")
	assert.Contains(t, out, "Found 1 stages")

	out = mustRun(t, cfg, "stage", "disable", "20240101-01")
	assert.Contains(t, out, "Stage 20240101-01 enabled: no")

	out = mustRun(t, cfg, "stage", "enable", "20240101-01")
	assert.Contains(t, out, "Stage 20240101-01 enabled: yes")

	out = mustRun(t, cfg, "stage", "end", "20240101-01", "none")
	assert.Contains(t, out, "Stage 20240101-01 now ends: open")

	out = mustRun(t, cfg, "stage", "end", "20240101-01", "2024-03-31")
	assert.Contains(t, out, "Stage 20240101-01 now ends: 2024-03-31")
}

func TestStageCommands_Errors(t *testing.T) {
	cfg := writeTestConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing name", args: []string{"stage", "add", "--start", "2024-01-01"}},
		{name: "bad start", args: []string{"stage", "add", "--name", "A", "--start", "01/01/2024"}},
		{name: "unknown stage", args: []string{"stage", "enable", "19990101-01"}},
		{name: "bad end date", args: []string{"stage", "end", "19990101-01", "tomorrow"}},
		{name: "missing yaml", args: []string{"stage", "import", filepath.Join(t.TempDir(), "none.yaml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			_, err := run(t, cfg, tt.args...)

			// Assert
			assert.Error(t, err)
		})
	}
}

func TestStageImportCommand(t *testing.T) {
	cfg := writeTestConfig(t)
	yamlPath := filepath.Join(t.TempDir(), "stages.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`stages:
  - name: Baseline
    start_date: "2023-06-01"
    end_date: "2023-12-31"
  - name: Atropine
    start_date: "2024-01-01"
    main_plan: 0.01% nightly
`), 0o600))

	// Act
	out := mustRun(t, cfg, "stage", "import", yamlPath)

	// Assert
	assert.Contains(t, out, `Created stage 20230601-01 "Baseline"`)
	assert.Contains(t, out, `Created stage 20240101-01 "Atropine"`)
	assert.Contains(t, out, "Imported 2 stages")
}

func TestRecordAndSummaryCommands(t *testing.T) {
	cfg := writeTestConfig(t)
	mustRun(t, cfg, "stage", "add", "--name", "Atropine", "--start", "2024-01-01")

	// Act
	out := mustRun(t, cfg, "record", "add", "--date", "2024-02-01",
		"--vision-left", "0.8", "--vision-right", "1.0",
		"--se-left", "-1.25", "--se-right", "-1.75",
		"--using", "atropine", "--adherence", "atropine=90")

	// Assert
	assert.Contains(t, out, `dated 2024-02-01 in stage "Atropine"`)

	out = mustRun(t, cfg, "record", "add", "--date", "2023-05-01", "--vision-left", "0.7")
	assert.Contains(t, out, `in stage "unmatched stage"`)

	out = mustRun(t, cfg, "record", "list")
	assert.Contains(t, out, "2024-02-01")
	assert.Contains(t, out, "0.8/1")
	assert.Contains(t, out, "-1.25/-1.75")
	assert.Contains(t, out, "Found 2 records")

	out = mustRun(t, cfg, "summary")
	assert.Contains(t, out, "low-dose atropine")
	assert.Contains(t, out, "Found 1 summary rows")
	assert.Contains(t, out, "0.9")
	assert.Contains(t, out, "-1.5")
}

func TestRecordAddCommand_FromFile(t *testing.T) {
	cfg := writeTestConfig(t)
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "date": "2024-04-02",
  "vision_left": "0.9",
  "axial_length_left": 24.123,
  "interventions": {"myopia_control_lenses": {"in_use": true, "frequencies": {"daily_hours": "10"}}}
}`), 0o600))

	// Act
	out := mustRun(t, cfg, "record", "add", "--file", path)

	// Assert
	assert.Contains(t, out, `dated 2024-04-02 in stage "unmatched stage"`)
}

func TestRecordAddCommand_Errors(t *testing.T) {
	cfg := writeTestConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing date", args: []string{"record", "add", "--vision-left", "0.8"}},
		{name: "vision out of range", args: []string{"record", "add", "--date", "2024-01-01", "--vision-left", "9"}},
		{name: "adherence without usage", args: []string{"record", "add", "--date", "2024-01-01", "--adherence", "atropine=90"}},
		{name: "unknown kind", args: []string{"record", "add", "--date", "2024-01-01", "--using", "surgery"}},
		{name: "missing file", args: []string{"record", "add", "--file", filepath.Join(t.TempDir(), "none.json")}},
		{name: "unknown record", args: []string{"record", "delete", "no-such-id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			_, err := run(t, cfg, tt.args...)

			// Assert
			assert.Error(t, err)
		})
	}
}

func TestExportImportCommands(t *testing.T) {
	source := writeTestConfig(t)
	mustRun(t, source, "stage", "add", "--name", "Atropine", "--start", "2024-01-01")
	mustRun(t, source, "record", "add", "--date", "2024-02-01", "--vision-left", "0.8")

	exportPath := filepath.Join(t.TempDir(), "export.json")
	mustRun(t, source, "export", "json", "--output", exportPath)

	// Act
	target := writeTestConfig(t)
	out := mustRun(t, target, "import", "json", exportPath)

	// Assert
	assert.Contains(t, out, "Imported 2, skipped 0")

	out = mustRun(t, target, "import", "json", exportPath)
	assert.Contains(t, out, "Imported 0, skipped 2")

	out = mustRun(t, target, "record", "list")
	assert.Contains(t, out, "Atropine")

	out = mustRun(t, target, "export", "json")
	assert.Contains(t, out, `"name": "Atropine"`)
}

func TestExportXLSXCommand(t *testing.T) {
	cfg := writeTestConfig(t)
	mustRun(t, cfg, "record", "add", "--date", "2024-02-01", "--vision-left", "0.8")
	path := filepath.Join(t.TempDir(), "report.xlsx")

	// Act
	mustRun(t, cfg, "export", "xlsx", "-o", path)

	// Assert
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data[:2]))
}

func TestMigrateCommand_RequiresPostgres(t *testing.T) {
	cfg := writeTestConfig(t)

	// Act
	_, err := run(t, cfg, "migrate", "version")

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres storage driver")
}

func TestRootCommand_BadConfig(t *testing.T) {
	// Act
	_, err := run(t, filepath.Join(t.TempDir(), "missing.yaml"), "stage", "list")

	// Assert
	assert.Error(t, err)
}
