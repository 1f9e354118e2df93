package definitions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/switchyard-dev/switchyard/internal/core"
)

type stubBase struct {
	procs []*core.Procedure
}

func (b stubBase) All() []*core.Procedure { return b.procs }

func builtinBase() stubBase {
	return stubBase{procs: []*core.Procedure{
		baseProc("implement", "analyze", "apply"),
		baseProc("answer", "research", "respond"),
	}}
}

func baseProc(name string, stepNames ...string) *core.Procedure {
	steps := make([]core.StepDefinition, len(stepNames))
	for i, s := range stepNames {
		steps[i] = core.StepDefinition{Name: s, InstructionRef: name + "/" + s + ".md"}
	}
	return &core.Procedure{
		Name:        name,
		Description: "builtin " + name,
		Steps:       steps,
		Source:      core.SourceBuiltin,
	}
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

const validFile = `workflows:
  - name: security-scan
    description: Run the security scanner over the repository
    priority: 15
    triggers:
      classifications: [code-change]
      labels: [security, Security-Review]
      keywords: [vulnerability]
    subroutines:
      - name: scan
        prompt_file: prompts/scan.md
        disallowed_tools: [Bash]
      - name: report
        prompt_file: prompts/report.md
        single_turn: true
        suppress_output_posting: false
`

func TestLoader_LoadValidFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "security.yaml", validFile)

	l := NewLoader(builtinBase(), Options{Dir: dir})
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if snap.HasErrors() {
		t.Fatalf("unexpected file errors: %v", snap.Errors())
	}
	if snap.ExternalCount() != 1 {
		t.Fatalf("ExternalCount = %d, want 1", snap.ExternalCount())
	}

	def, ok := snap.Definition("security-scan")
	if !ok {
		t.Fatal("security-scan definition not found")
	}
	if def.Priority != 15 {
		t.Errorf("Priority = %d, want 15", def.Priority)
	}
	if def.SourceFile != "security.yaml" {
		t.Errorf("SourceFile = %q, want security.yaml", def.SourceFile)
	}
	if len(def.Triggers.Labels) != 2 {
		t.Errorf("trigger labels = %v, want 2 entries", def.Triggers.Labels)
	}
	if len(def.Triggers.Classifications) != 1 || def.Triggers.Classifications[0] != core.ClassificationCodeChange {
		t.Errorf("trigger classifications = %v", def.Triggers.Classifications)
	}

	p, ok := snap.Procedure("security-scan")
	if !ok {
		t.Fatal("merged set missing security-scan")
	}
	if p.Source != core.SourceExternal {
		t.Errorf("Source = %q, want external", p.Source)
	}
	if len(p.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(p.Steps))
	}

	wantRef := filepath.Join(dir, "prompts", "scan.md")
	if p.Steps[0].InstructionRef != wantRef {
		t.Errorf("InstructionRef = %q, want %q", p.Steps[0].InstructionRef, wantRef)
	}
}

func TestLoader_FlagAbsentVersusFalse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "security.yaml", validFile)

	l := NewLoader(builtinBase(), Options{Dir: dir})
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	p, _ := snap.Procedure("security-scan")
	scan, _ := p.Step("scan")
	report, _ := p.Step("report")

	if scan.SingleTurn != nil {
		t.Error("scan.single_turn absent in file, expected nil flag")
	}
	if report.SingleTurn == nil || !*report.SingleTurn {
		t.Error("report.single_turn: true in file, expected true flag")
	}
	if report.SuppressOutputPosting == nil || *report.SuppressOutputPosting {
		t.Error("report.suppress_output_posting: false in file, expected explicit false flag")
	}
	if len(scan.DisallowedTools) != 1 || scan.DisallowedTools[0] != "Bash" {
		t.Errorf("scan.DisallowedTools = %v", scan.DisallowedTools)
	}
}

func TestLoader_InvalidFileIsIsolated(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.yaml", validFile)
	writeFile(t, dir, "bad.yaml", `workflows:
  - name: broken
    subroutines: []
`)

	l := NewLoader(builtinBase(), Options{Dir: dir})
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, ok := snap.Definition("security-scan"); !ok {
		t.Error("valid file should still load when a sibling is broken")
	}
	if _, ok := snap.Definition("broken"); ok {
		t.Error("invalid definition must not appear in the merged set")
	}

	errs := snap.Errors()
	if _, ok := errs["bad.yaml"]; !ok {
		t.Errorf("expected bad.yaml in error map, got %v", errs)
	}
	if !core.IsCategory(errs["bad.yaml"], core.ErrCatStructural) {
		t.Errorf("expected structural error, got %v", errs["bad.yaml"])
	}
}

func TestLoader_UnparseableYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "garbage.yaml", "workflows: [un{closed")

	l := NewLoader(builtinBase(), Options{Dir: dir})
	snap, _ := l.Load(context.Background())

	err, ok := snap.Errors()["garbage.yaml"]
	if !ok {
		t.Fatalf("expected garbage.yaml in error map, got %v", snap.Errors())
	}
	var derr *core.DomainError
	if !errors.As(err, &derr) || derr.Code != core.CodeUnparseableFile {
		t.Errorf("expected %s, got %v", core.CodeUnparseableFile, err)
	}
}

func TestLoader_LaterFileWinsOnCollision(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `workflows:
  - name: custom
    description: from a
    subroutines:
      - {name: one, prompt_file: one.md}
`)
	writeFile(t, dir, "b.yaml", `workflows:
  - name: custom
    description: from b
    subroutines:
      - {name: one, prompt_file: one.md}
      - {name: two, prompt_file: two.md}
`)

	l := NewLoader(builtinBase(), Options{Dir: dir})
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	def, ok := snap.Definition("custom")
	if !ok {
		t.Fatal("custom not found")
	}
	if def.Procedure.Description != "from b" {
		t.Errorf("Description = %q, lexicographically later file should win", def.Procedure.Description)
	}
	if def.SourceFile != "b.yaml" {
		t.Errorf("SourceFile = %q, want b.yaml", def.SourceFile)
	}
	if len(def.Procedure.Steps) != 2 {
		t.Errorf("steps = %d, replacement must be total, not a field merge", len(def.Procedure.Steps))
	}
}

func TestLoader_ExternalOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "override.yaml", `workflows:
  - name: implement
    description: replaced implement
    subroutines:
      - {name: just-do-it, prompt_file: doit.md}
`)

	l := NewLoader(builtinBase(), Options{Dir: dir})
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	p, ok := snap.Procedure("implement")
	if !ok {
		t.Fatal("implement not found")
	}
	if p.Source != core.SourceExternal {
		t.Errorf("Source = %q, external definition should replace the builtin", p.Source)
	}
	if len(p.Steps) != 1 || p.Steps[0].Name != "just-do-it" {
		t.Errorf("steps = %v, want the external definition's steps", p.StepNames())
	}

	// The other builtin is untouched.
	answer, ok := snap.Procedure("answer")
	if !ok || answer.Source != core.SourceBuiltin {
		t.Error("unrelated builtin should survive the merge unchanged")
	}

	// Overriding keeps the builtin's listing position.
	names := snap.Names()
	if len(names) < 2 || names[0] != "implement" || names[1] != "answer" {
		t.Errorf("Names() = %v, override should keep builtin order", names)
	}
}

func TestLoader_EmptyDirKeepsBuiltins(t *testing.T) {
	l := NewLoader(builtinBase(), Options{Dir: t.TempDir()})
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if snap.ExternalCount() != 0 {
		t.Errorf("ExternalCount = %d, want 0", snap.ExternalCount())
	}
	if len(snap.Procedures()) != 2 {
		t.Errorf("Procedures() = %d, want the 2 builtins", len(snap.Procedures()))
	}
}

func TestLoader_MissingDirKeepsBuiltins(t *testing.T) {
	l := NewLoader(builtinBase(), Options{Dir: filepath.Join(t.TempDir(), "does-not-exist")})
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.HasErrors() {
		t.Errorf("missing dir should not be an error, got %v", snap.Errors())
	}
	if len(snap.Procedures()) != 2 {
		t.Errorf("Procedures() = %d, want the 2 builtins", len(snap.Procedures()))
	}
}

func TestLoader_SchemaRejectsUnknownClassification(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad-trigger.yaml", `workflows:
  - name: custom
    description: has a bogus trigger classification
    triggers:
      classifications: [not-a-classification]
    subroutines:
      - {name: one, prompt_file: one.md}
`)

	l := NewLoader(builtinBase(), Options{Dir: dir})
	snap, _ := l.Load(context.Background())

	err, ok := snap.Errors()["bad-trigger.yaml"]
	if !ok {
		t.Fatalf("expected bad-trigger.yaml rejected, got errors %v", snap.Errors())
	}
	if !core.IsCategory(err, core.ErrCatSchema) {
		t.Errorf("expected schema violation, got %v", err)
	}
	if _, ok := snap.Definition("custom"); ok {
		t.Error("schema-invalid definition must not load")
	}
}

func TestLoader_ReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `workflows:
  - name: custom
    description: first version
    subroutines:
      - {name: one, prompt_file: one.md}
`)

	l := NewLoader(builtinBase(), Options{Dir: dir})
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	writeFile(t, dir, "a.yaml", `workflows:
  - name: custom
    description: second version
    subroutines:
      - {name: one, prompt_file: one.md}
`)

	snap, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	def, _ := snap.Definition("custom")
	if def == nil || def.Procedure.Description != "second version" {
		t.Errorf("refresh did not pick up the change: %+v", def)
	}
}

func TestLoader_RemovedFileDropsDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", validFile)

	l := NewLoader(builtinBase(), Options{Dir: dir})
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "a.yaml")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	snap, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if snap.ExternalCount() != 0 {
		t.Errorf("ExternalCount = %d after file removal, want 0", snap.ExternalCount())
	}
}

func TestLoader_SnapshotBeforeLoad(t *testing.T) {
	l := NewLoader(builtinBase(), Options{Dir: t.TempDir()})

	snap := l.Snapshot()
	if snap == nil {
		t.Fatal("Snapshot() before Load returned nil")
	}
	if len(snap.Procedures()) != 2 {
		t.Errorf("expected builtins-only snapshot, got %d procedures", len(snap.Procedures()))
	}
}

func TestLoader_NestedDirectoriesDiscovered(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, filepath.Join("team", "security.yml"), validFile)

	l := NewLoader(builtinBase(), Options{Dir: dir})
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := snap.Definition("security-scan"); !ok {
		t.Error("definition in nested directory not discovered")
	}

	def, _ := snap.Definition("security-scan")
	wantRef := filepath.Join(dir, "team", "prompts", "scan.md")
	if def.Procedure.Steps[0].InstructionRef != wantRef {
		t.Errorf("InstructionRef = %q, want %q (anchored at declaring file)", def.Procedure.Steps[0].InstructionRef, wantRef)
	}
}

func TestLoader_HiddenDirectoriesSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, filepath.Join(".git", "sneaky.yaml"), validFile)

	l := NewLoader(builtinBase(), Options{Dir: dir})
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.ExternalCount() != 0 {
		t.Errorf("files under dot-directories must be ignored, got %d definitions", snap.ExternalCount())
	}
}
