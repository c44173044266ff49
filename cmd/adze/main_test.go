package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParamFlag(t *testing.T) {
	p := paramFlag{}
	for _, s := range []string{"gap=2", " width = 1.5"} {
		if err := p.Set(s); err != nil {
			t.Fatalf("Set(%q): %v", s, err)
		}
	}
	if p["gap"] != 2 || p["width"] != 1.5 {
		t.Errorf("params = %v", p)
	}
	if got := p.String(); got != "gap=2 width=1.5" {
		t.Errorf("String() = %q", got)
	}
	for _, bad := range []string{"gap", "=1", "gap=wide"} {
		if err := p.Set(bad); err == nil {
			t.Errorf("Set(%q) should fail", bad)
		}
	}
}

func TestAxisFlag(t *testing.T) {
	a := axisFlag{}
	if err := a.Set("gap=1, 2,3"); err != nil {
		t.Fatal(err)
	}
	if err := a.Set("gap=4"); err != nil {
		t.Fatal(err)
	}
	if got := a["gap"]; len(got) != 4 || got[3] != 4 {
		t.Errorf("gap axis = %v", got)
	}
	if err := a.Set("gap="); err == nil {
		t.Error("empty axis should fail")
	}
}

func TestScriptName(t *testing.T) {
	tests := map[string]string{
		"examples/capacitor.adz": "capacitor",
		"model":                  "model",
		"dir/two.part.adz":       "two",
		".hidden":                ".hidden",
	}
	for in, want := range tests {
		if got := scriptName(in); got != want {
			t.Errorf("scriptName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(nil, &stdout, &stderr); err != errUsage {
		t.Errorf("no args: err = %v", err)
	}
	if err := run([]string{"frobnicate"}, &stdout, &stderr); err != errUsage {
		t.Errorf("unknown command: err = %v", err)
	}
	if !strings.Contains(stderr.String(), "usage: adze") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunExport(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cap.lua")
	var stdout, stderr bytes.Buffer
	err := run([]string{"export", "-p", "gap=2", "-o", out, "../../examples/capacitor.adz"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("export: %v\n%s", err, stderr.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `ei_saveas("capacitor.fee")`) {
		t.Errorf("script should be named after the model file:\n%s", data)
	}
}

func TestRunReportsEvalErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.adz")
	if err := os.WriteFile(path, []byte("(rect 0 0 1 1)\n(rect 0 0 -1 1)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	if err := run([]string{"render", path}, &stdout, &stderr); err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(stderr.String(), "broken.adz") {
		t.Errorf("stderr should name the file: %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Error("nothing should be rendered")
	}
}
