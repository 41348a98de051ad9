package converter

// office.go: legacy .doc to .docx conversion through a headless LibreOffice.

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// officeCandidates are tried in order when no binary is configured.
var officeCandidates = []string{"soffice", "libreoffice"}

const officeHint = "install LibreOffice (soffice) or set DOC2MD_OFFICE_BIN"

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Run returns combined output so failures carry the tool's own message.
func (osExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// officeEngine drives one LibreOffice binary with a private user profile.
// LibreOffice refuses concurrent conversions on a shared profile, so calls
// are serialized.
type officeEngine struct {
	mu      sync.Mutex
	bin     string
	profile string
	exec    executor
}

// newOfficeFactory returns a pool Factory that locates the office binary.
// A missing binary is a MissingDependency, so the adapter can report it
// without producing any output.
func newOfficeFactory(ex executor, configured string) Factory {
	return func(context.Context) (Engine, error) {
		candidates := officeCandidates
		if configured != "" {
			candidates = []string{configured}
		}
		var bin string
		for _, c := range candidates {
			if p, err := ex.LookPath(c); err == nil {
				bin = p
				break
			}
		}
		if bin == "" {
			return nil, &Error{
				Kind: KindMissingDependency,
				Msg:  fmt.Sprintf("office converter not found (tried %s)", strings.Join(candidates, ", ")),
				Hint: officeHint,
			}
		}
		profile, err := os.MkdirTemp("", "doc2md-office-profile-*")
		if err != nil {
			return nil, fmt.Errorf("create office profile: %w", err)
		}
		return &officeEngine{bin: bin, profile: profile, exec: ex}, nil
	}
}

func (*officeEngine) Kind() EngineKind { return EngineOffice }

func (e *officeEngine) Close() error {
	return os.RemoveAll(e.profile)
}

// ToDOCX converts src into outDir and returns the path of the new .docx.
func (e *officeEngine) ToDOCX(ctx context.Context, src, outDir string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	profileURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(e.profile)}).String()
	out, err := e.exec.Run(ctx, e.bin,
		"-env:UserInstallation="+profileURL,
		"--headless", "--norestore",
		"--convert-to", "docx",
		"--outdir", outDir,
		src,
	)
	if err != nil {
		return "", fmt.Errorf("%s --convert-to docx: %w: %s", filepath.Base(e.bin), err, strings.TrimSpace(string(out)))
	}

	base := filepath.Base(src)
	docx := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".docx")
	if _, err := os.Stat(docx); err != nil {
		return "", fmt.Errorf("%s produced no docx: %s", filepath.Base(e.bin), strings.TrimSpace(string(out)))
	}
	return docx, nil
}
