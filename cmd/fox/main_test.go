package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/fox/pkg/bytecode"
)

func writeCodeObject(t *testing.T, dir, name, module string, fn *bytecode.Function) string {
	t.Helper()
	data, err := bytecode.Marshal(module, fn)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func printSum() *bytecode.Function {
	b := bytecode.NewBuilder("", 0)
	b.EmitConstant(bytecode.OpConstant, bytecode.Number(1))
	b.EmitConstant(bytecode.OpConstant, bytecode.Number(2))
	b.Emit(bytecode.OpAdd)
	b.Emit(bytecode.OpPrint)
	b.Emit(bytecode.OpNil)
	b.Emit(bytecode.OpReturn)
	return b.Build()
}

func TestRunPrintsOutput(t *testing.T) {
	dir := t.TempDir()
	path := writeCodeObject(t, dir, "sum.foxc", "", printSum())

	out, err := execute(t, "run", "-C", dir, path)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != "3\n" {
		t.Errorf("output = %q, want %q", out, "3\n")
	}
}

func TestRunUsesManifestEntryAndModules(t *testing.T) {
	dir := t.TempDir()

	// util module defines answer = 42.
	lib := bytecode.NewBuilder("", 0)
	lib.EmitConstant(bytecode.OpConstant, bytecode.Number(42))
	lib.EmitName(bytecode.OpDefineGlobal, "answer")
	lib.Emit(bytecode.OpEndModule)
	lib.Emit(bytecode.OpReturn)
	writeCodeObject(t, dir, "util.foxc", "", lib.Build())

	// main prints util.answer.
	main := bytecode.NewBuilder("", 0)
	main.EmitName(bytecode.OpImport, "util")
	main.EmitName(bytecode.OpGetProperty, "answer")
	main.Emit(bytecode.OpPrint)
	main.Emit(bytecode.OpNil)
	main.Emit(bytecode.OpReturn)
	writeCodeObject(t, dir, "main.foxc", "", main.Build())

	manifest := "[project]\nname = \"demo\"\n\n[modules]\nutil = \"util.foxc\"\n"
	if err := os.WriteFile(filepath.Join(dir, "fox.toml"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "run", "-C", dir)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != "42\n" {
		t.Errorf("output = %q, want %q", out, "42\n")
	}
}

func TestRunRuntimeErrorExitCode(t *testing.T) {
	dir := t.TempDir()
	b := bytecode.NewBuilder("", 0)
	b.Line(3)
	b.Emit(bytecode.OpTrue)
	b.Emit(bytecode.OpNegate)
	b.Emit(bytecode.OpReturn)
	path := writeCodeObject(t, dir, "bad.foxc", "", b.Build())

	_, err := execute(t, "run", "-C", dir, path)
	var ee *exitError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want exitError", err)
	}
	if ee.code != exitSoftware {
		t.Errorf("exit code = %d, want %d", ee.code, exitSoftware)
	}
	want := "Operand must be a number.\n[line 3] in script"
	if ee.Error() != want {
		t.Errorf("error = %q, want %q", ee.Error(), want)
	}
}

func TestRunMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "run", "-C", dir, filepath.Join(dir, "nope.foxc"))
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != exitNoInput {
		t.Fatalf("error = %v, want exit code %d", err, exitNoInput)
	}
}

func TestRunCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.foxc")
	if err := os.WriteFile(path, []byte("not cbor at all"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "run", "-C", dir, path)
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != exitCompile {
		t.Fatalf("error = %v, want exit code %d", err, exitCompile)
	}
}

func TestDisassemble(t *testing.T) {
	dir := t.TempDir()
	path := writeCodeObject(t, dir, "sum.foxc", "demo", printSum())

	out, err := execute(t, "dis", path)
	if err != nil {
		t.Fatalf("dis failed: %v", err)
	}
	for _, want := range []string{"; module demo", "== script ==", "CONSTANT", "ADD", "PRINT", "RETURN"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestConfigPrintsDefaults(t *testing.T) {
	out, err := execute(t, "config", "-C", t.TempDir())
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	for _, want := range []string{"[vm]", "max-frames = 64", "[gc]", "growth-factor = 2.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output missing %q:\n%s", want, out)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "fox dev") {
		t.Errorf("version output = %q", out)
	}
}
