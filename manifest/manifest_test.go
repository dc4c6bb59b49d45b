package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/mcc/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "mcc.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "calc"
version = "0.1.0"

[vm]
stack-size = 65536
heap-size = 131072
cycle-limit = 1000000

[build]
output = "calc.mcb"
dump-code = true
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Project.Name != "calc" || m.Project.Version != "0.1.0" {
		t.Errorf("project = %+v", m.Project)
	}
	if m.VM.StackSize != 65536 || m.VM.HeapSize != 131072 || m.VM.CycleLimit != 1000000 {
		t.Errorf("vm = %+v", m.VM)
	}
	if !m.Build.DumpCode {
		t.Error("dump-code not parsed")
	}
	if m.OutputPath() != filepath.Join(m.Dir, "calc.mcb") {
		t.Errorf("OutputPath = %q", m.OutputPath())
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "tiny"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.VM.StackSize != vm.DefaultStackSize {
		t.Errorf("stack size = %d, want default %d", m.VM.StackSize, vm.DefaultStackSize)
	}
	if m.VM.HeapSize != vm.DefaultHeapSize {
		t.Errorf("heap size = %d, want default %d", m.VM.HeapSize, vm.DefaultHeapSize)
	}
	if m.VM.CycleLimit != 0 {
		t.Errorf("cycle limit = %d, want 0 (unlimited)", m.VM.CycleLimit)
	}
	if m.OutputPath() != "" {
		t.Errorf("OutputPath = %q, want empty", m.OutputPath())
	}
}

func TestLoadRejectsNegativeSizes(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[vm]
stack-size = -1
`)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for negative stack size")
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `[project`)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for missing mcc.toml")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `
[project]
name = "nested"
`)
	sub := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m == nil {
		t.Fatal("manifest not found from nested directory")
	}
	if m.Project.Name != "nested" {
		t.Errorf("name = %q, want nested", m.Project.Name)
	}
}

func TestFindAndLoadNone(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m != nil {
		t.Errorf("found unexpected manifest: %+v", m)
	}
}

func TestDefault(t *testing.T) {
	m := Default()
	if m.VM.StackSize != vm.DefaultStackSize || m.VM.HeapSize != vm.DefaultHeapSize {
		t.Errorf("Default() vm = %+v", m.VM)
	}
}
