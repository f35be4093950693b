package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validDescription = `[experiment]
exp-1
lab	Smith

[protocols]
growth	local:protocol	Grow cells

[data]
out	Result File	sample.fastq

[applied]
growth		out
`

const blockedDescription = `[experiment]
exp-1

[data]
bad	Result Value	x	local:type	missing_source

[protocols]
growth	local:protocol	Grow cells

[applied]
growth		bad
`

const chainedDescription = `[experiment]
exp-chain

[protocols]
extraction	local:protocol	Extract RNA
sequencing	local:protocol	Sequence the library

[data]
rna	Result Value	total RNA
reads	Result File	sample.fastq

[applied]
extraction		rna
sequencing	rna	reads
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "description.tsv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write description: %v", err)
	}
	return path
}

func TestRunWritesDocument(t *testing.T) {
	input := writeTemp(t, validDescription)
	output := filepath.Join(t.TempDir(), "export.xml")
	if err := run(context.Background(), input, output); err != nil {
		t.Fatalf("run: %v", err)
	}
	doc, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	text := string(doc)
	if !strings.HasPrefix(text, "<?xml") {
		t.Fatalf("output missing xml declaration:\n%s", text)
	}
	for _, want := range []string{"<chadoxml>", "<uniquename>exp-1</uniquename>", "<protocol id=", "</chadoxml>"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRunEmitsEveryAppliedStep(t *testing.T) {
	input := writeTemp(t, chainedDescription)
	output := filepath.Join(t.TempDir(), "chain.xml")
	if err := run(context.Background(), input, output); err != nil {
		t.Fatalf("run: %v", err)
	}
	doc, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	text := string(doc)
	if got := strings.Count(text, "<applied_protocol id="); got != 2 {
		t.Fatalf("document holds %d applied protocol bodies, want 2:\n%s", got, text)
	}
	for _, want := range []string{"Sequence the library", "sample.fastq"} {
		if !strings.Contains(text, want) {
			t.Fatalf("second chain step missing %q:\n%s", want, text)
		}
	}
}

func TestRunWithEagerCompression(t *testing.T) {
	t.Setenv("CHADOGRAPH_EAGER_COMPRESS", "1")
	input := writeTemp(t, validDescription)
	plain := filepath.Join(t.TempDir(), "plain.xml")
	if err := run(context.Background(), input, plain); err != nil {
		t.Fatalf("run: %v", err)
	}
	t.Setenv("CHADOGRAPH_EAGER_COMPRESS", "")
	compressedOff := filepath.Join(t.TempDir(), "off.xml")
	if err := run(context.Background(), input, compressedOff); err != nil {
		t.Fatalf("run without eager compression: %v", err)
	}
	a, err := os.ReadFile(plain)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	b, err := os.ReadFile(compressedOff)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(a) != string(b) {
		t.Fatal("eager compression changed the exported document")
	}
}

func TestRunBlockedByValidation(t *testing.T) {
	input := writeTemp(t, blockedDescription)
	output := filepath.Join(t.TempDir(), "export.xml")
	err := run(context.Background(), input, output)
	if err == nil {
		t.Fatal("expected validation to block the export")
	}
	if !strings.Contains(err.Error(), "validation blocked") {
		t.Fatalf("error = %q", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Fatal("blocked export left an output file behind")
	}
}

func TestRunMissingInput(t *testing.T) {
	err := run(context.Background(), filepath.Join(t.TempDir(), "absent.tsv"), "")
	if err == nil {
		t.Fatal("expected error for missing input file")
	}
}

func TestRunWritesThroughConfiguredDriver(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CHADOGRAPH_BLOB_DRIVER", "fs")
	t.Setenv("CHADOGRAPH_BLOB_FS_ROOT", root)
	input := writeTemp(t, validDescription)
	if err := run(context.Background(), input, "exports/exp.xml"); err != nil {
		t.Fatalf("run: %v", err)
	}
	doc, err := os.ReadFile(filepath.Join(root, "exports", "exp.xml"))
	if err != nil {
		t.Fatalf("read exported document: %v", err)
	}
	if !strings.Contains(string(doc), "<chadoxml>") {
		t.Fatalf("exported document malformed:\n%s", doc)
	}
}

func TestRunRejectsUnknownBlobDriver(t *testing.T) {
	t.Setenv("CHADOGRAPH_BLOB_DRIVER", "bogus")
	input := writeTemp(t, validDescription)
	err := run(context.Background(), input, filepath.Join(t.TempDir(), "export.xml"))
	if err == nil || !strings.Contains(err.Error(), "unknown blob driver") {
		t.Fatalf("error = %v", err)
	}
}

func TestRunRejectsBadS3Destination(t *testing.T) {
	input := writeTemp(t, validDescription)
	err := run(context.Background(), input, "s3://bucket-only")
	if err == nil || !strings.Contains(err.Error(), "invalid s3 destination") {
		t.Fatalf("error = %v", err)
	}
}
