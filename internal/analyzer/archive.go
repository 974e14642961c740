package analyzer

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/TanviPoddar/CodeGenie/internal/sandbox"
)

const manifestName = "manifest.json"

// Manifest describes the contents of a build archive.
type Manifest struct {
	BuildID    string    `json:"build_id"`
	Language   string    `json:"language"`
	SourceFile string    `json:"source_file"`
	CreatedAt  time.Time `json:"created_at"`
}

// PackageFindings is what Package records on the stage.
type PackageFindings struct {
	SHA256    string   `json:"sha256"`
	SizeBytes int64    `json:"size_bytes"`
	Files     []string `json:"files"`
}

// Package writes the source and a manifest to <Dir>/<build_id>.tar.gz and
// hands the archive path to the next stage.
type Package struct {
	Dir string
}

// Run implements Analyzer.
func (p *Package) Run(_ context.Context, req Request) (Result, error) {
	if err := checkBuildID(req.BuildID); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create artifact dir: %w", err)
	}

	manifest := Manifest{
		BuildID:    req.BuildID,
		Language:   req.Language,
		SourceFile: sourceFileName(req.Language),
		CreatedAt:  time.Now().UTC(),
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode manifest: %w", err)
	}

	path := filepath.Join(p.Dir, req.BuildID+".tar.gz")
	f, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("create archive: %w", err)
	}

	sum := sha256.New()
	files := []fileEntry{
		{Name: manifest.SourceFile, Mode: 0o644, Data: []byte(req.Source)},
		{Name: manifestName, Mode: 0o644, Data: manifestJSON},
	}
	werr := writeTarGz(io.MultiWriter(f, sum), files, manifest.CreatedAt)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(path)
		return Result{}, fmt.Errorf("write archive: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("stat archive: %w", err)
	}
	return Result{
		Pass:     true,
		Artifact: path,
		Findings: PackageFindings{
			SHA256:    hex.EncodeToString(sum.Sum(nil)),
			SizeBytes: info.Size(),
			Files:     []string{manifest.SourceFile, manifestName},
		},
	}, nil
}

type fileEntry struct {
	Name string
	Mode int64
	Data []byte
}

func writeTarGz(w io.Writer, files []fileEntry, mtime time.Time) error {
	gz := gzip.NewWriter(w)
	if err := writeTar(gz, files, mtime); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

func writeTar(w io.Writer, files []fileEntry, mtime time.Time) error {
	tw := tar.NewWriter(w)
	for _, f := range files {
		hdr := &tar.Header{
			Name:    f.Name,
			Mode:    f.Mode,
			Size:    int64(len(f.Data)),
			ModTime: mtime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header %s: %w", f.Name, err)
		}
		if _, err := tw.Write(f.Data); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return tw.Close()
}

func sourceFileName(language string) string {
	if lang, ok := sandbox.LookupLanguage(language); ok {
		return lang.SourceFile
	}
	return "source.txt"
}

// checkBuildID rejects IDs that would escape the artifact directory.
func checkBuildID(id string) error {
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return fmt.Errorf("invalid build id %q", id)
	}
	return nil
}
