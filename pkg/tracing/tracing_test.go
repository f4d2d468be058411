package tracing

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/drivecap/pkg/adapters/logger"
)

func TestInit_ExportsSpans(t *testing.T) {
	t.Cleanup(Disable)

	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), &buf, "drivecap-test")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "record")
	End(span, errors.New("tick failed"))

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"Name":"record"`, "tick failed", "drivecap-test"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected exported span to contain %q, got:\n%s", want, out)
		}
	}
}

func TestInitFile(t *testing.T) {
	t.Cleanup(Disable)

	path := filepath.Join(t.TempDir(), "trace.json")
	shutdown, err := InitFile(context.Background(), path, "drivecap-test")
	if err != nil {
		t.Fatalf("InitFile failed: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "setup")
	End(span, nil)
	ShutdownWithTimeout(context.Background(), shutdown, logger.NewNoop())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trace file: %v", err)
	}
	if !strings.Contains(string(data), `"Name":"setup"`) {
		t.Errorf("expected setup span in trace file, got:\n%s", data)
	}
}

func TestInitFile_BadPath(t *testing.T) {
	if _, err := InitFile(context.Background(), filepath.Join(t.TempDir(), "missing", "trace.json"), "x"); err == nil {
		t.Error("expected error for unwritable path")
	}
}
