package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/sevigo/integrator/internal/core"
)

// pdfTextExtractor shells out to pdftotext. Output goes to stdout so no
// temp files are left behind.
type pdfTextExtractor struct {
	bin string
}

// NewTextExtractor creates a core.TextExtractor backed by the given
// pdftotext binary.
func NewTextExtractor(bin string) core.TextExtractor {
	return &pdfTextExtractor{bin: bin}
}

func (x *pdfTextExtractor) Extract(ctx context.Context, path string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, x.bin, "-layout", path, "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed for %s: %w (%s)", x.bin, path, err, stderr.String())
	}
	return stdout.Bytes(), nil
}
