package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/annotator/internal/auth"
)

const seedYAML = `datasets:
  - id: bridges
    images:
      - {id: img-1, filename: deck-01.jpg}
      - {id: img-2, filename: deck-02.jpg}
    categories:
      - {id: crack, name: Crack}
      - {id: spall, name: Spall, order: 1}
    annotations:
      - {id: a1, imageId: img-1, bbox: [0.1, 0.2, 0.3, 0.4], categoryId: crack, state: approved}
      - {id: a2, imageId: img-2, bbox: [0.7, 0.7, 0.3, 0.3], categoryId: spall}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("ANNOTATOR_JWT_SECRET", "s3cret")

	out, err := run(t, "token", "--user", "alice", "--name", "Alice")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	claims, err := auth.ParseToken([]byte("s3cret"), strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Expected a valid token, got %v", err)
	}
	if claims.Subject != "alice" || claims.Name != "Alice" {
		t.Errorf("Expected alice, got %+v", claims)
	}
}

func TestTokenCommandNeedsSecret(t *testing.T) {
	t.Setenv("ANNOTATOR_JWT_SECRET", "")
	if _, err := run(t, "token", "--user", "alice"); err == nil {
		t.Error("Expected error without a secret")
	}
}

func TestExportThenValidate(t *testing.T) {
	seed := writeSeed(t)
	dir := filepath.Join(t.TempDir(), "yolo")

	out, err := run(t, "export", "--seed", seed, "--dataset", "bridges", "--format", "yolo", "--out", dir, "--val-every", "2")
	if err != nil {
		t.Fatalf("Expected export to succeed, got %v", err)
	}
	if !strings.Contains(out, "Wrote 2 label files with 2 boxes") {
		t.Errorf("Unexpected output %q", out)
	}
	data, err := os.ReadFile(filepath.Join(dir, "labels", "val", "deck-02.txt"))
	if err != nil {
		t.Fatalf("Expected val label file, got %v", err)
	}
	if !strings.HasPrefix(string(data), "1 ") {
		t.Errorf("Expected spall class 1, got %q", data)
	}

	report := filepath.Join(t.TempDir(), "report.yaml")
	if _, err := run(t, "validate", dir, "--report", report); err != nil {
		t.Fatalf("Expected exported labels to validate, got %v", err)
	}
	if _, err := os.Stat(report); err != nil {
		t.Errorf("Expected report file, got %v", err)
	}
}

func TestValidateReportsIssues(t *testing.T) {
	dir := t.TempDir()
	labels := filepath.Join(dir, "labels", "train")
	if err := os.MkdirAll(labels, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(labels, "a.txt"), []byte("0 0.5 0.5 0.2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "validate", dir)
	if err == nil || !strings.Contains(err.Error(), "found 1 invalid label lines") {
		t.Errorf("Expected one invalid line, got %v", err)
	}
	if !strings.Contains(out, "a.txt") {
		t.Errorf("Expected issue listing to name a.txt, got %q", out)
	}
}

func TestExportFlatFormats(t *testing.T) {
	seed := writeSeed(t)
	for _, name := range []string{"out.parquet", "out.xlsx", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			format := strings.TrimPrefix(filepath.Ext(name), ".")
			if _, err := run(t, "export", "--seed", seed, "--dataset", "bridges", "-f", format, "-o", path); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if st, err := os.Stat(path); err != nil || st.Size() == 0 {
				t.Errorf("Expected non-empty %s, got %v", name, err)
			}
		})
	}
}

func TestExportRequiresDataset(t *testing.T) {
	t.Setenv("ANNOTATOR_DATASET", "")
	if _, err := run(t, "export", "--out", t.TempDir()); err == nil {
		t.Error("Expected error without a dataset")
	}
}
