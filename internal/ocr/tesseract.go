package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner lets us stub the external tesseract command in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		slog.Error("exec failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		slog.Debug("exec ok",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// Tesseract implements the Recognizer interface by shelling out to the
// tesseract binary. This is the default engine: local, fast, and needs no
// API key.
type Tesseract struct {
	binary  string
	lang    string
	timeout time.Duration
	runner  Runner
}

// NewTesseract creates a Tesseract recognizer. binary defaults to
// "tesseract" on PATH and lang to "eng".
func NewTesseract(binary, lang string) *Tesseract {
	return NewTesseractWithRunner(binary, lang, execRunner{})
}

// NewTesseractWithRunner creates a Tesseract recognizer with a custom
// command runner for testing.
func NewTesseractWithRunner(binary, lang string, runner Runner) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	return &Tesseract{
		binary:  binary,
		lang:    lang,
		timeout: 60 * time.Second,
		runner:  runner,
	}
}

// RecognizeText converts the image to PNG, writes it to a temp file, and
// runs `tesseract <file> stdout -l <lang>`.
func (t *Tesseract) RecognizeText(image []byte, contentType string) (string, error) {
	pngData, _, _, err := prepareImageData(image, contentType)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "receipt-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("creating temp image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pngData); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp image: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	out, errb, err := t.runner.Run(ctx, t.binary, tmp.Name(), "stdout", "-l", t.lang)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (stderr: %s)", err, truncate(string(errb), 1024))
	}

	return string(out), nil
}

// Close implements Recognizer; the exec engine holds no resources.
func (t *Tesseract) Close() error { return nil }
