// Package artifacts collects the files a failed probe leaves behind.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
)

// Result locates what was archived for one run.
type Result struct {
	ArtifactURL string
	ImageURL    string
	Files       int
}

// Hook archives artifacts for a failed outcome.
type Hook interface {
	Archive(ctx context.Context, o outcome.Outcome) (Result, error)
}

// DirArchiver copies artifacts into
// <Root>/<app>/<test>/<run-id>/ and returns file:// URLs.
type DirArchiver struct {
	Root   string
	Glob   string
	Image  string
	Logger *slog.Logger
}

// Archive copies every file matching Glob into the run directory, keeping
// paths relative to the glob's base, and copies Image next to them.
// A missing image is an error; an empty glob match is not.
func (a *DirArchiver) Archive(ctx context.Context, o outcome.Outcome) (Result, error) {
	var res Result
	if a.Glob == "" && a.Image == "" {
		return res, nil
	}

	runDir := filepath.Join(a.Root, safeName(o.AppName), safeName(o.TestName), o.RunID.String())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return res, fmt.Errorf("create archive dir: %w", err)
	}

	var errs []error
	if a.Glob != "" {
		n, err := a.copyGlob(ctx, filepath.Join(runDir, "artifacts"))
		res.Files += n
		if err != nil {
			errs = append(errs, err)
		}
		if n > 0 {
			res.ArtifactURL = fileURL(filepath.Join(runDir, "artifacts"))
		}
	}
	if a.Image != "" {
		dst := filepath.Join(runDir, filepath.Base(a.Image))
		if err := copyFile(a.Image, dst); err != nil {
			errs = append(errs, fmt.Errorf("image: %w", err))
		} else {
			res.Files++
			res.ImageURL = fileURL(dst)
		}
	}

	if a.Logger != nil {
		a.Logger.InfoContext(ctx, "artifacts_archived",
			"dir", runDir,
			"files", res.Files,
		)
	}
	return res, errors.Join(errs...)
}

func (a *DirArchiver) copyGlob(ctx context.Context, dstDir string) (int, error) {
	base, pattern := doublestar.SplitPattern(filepath.ToSlash(a.Glob))
	matches, err := doublestar.Glob(os.DirFS(filepath.FromSlash(base)), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return 0, fmt.Errorf("glob %q: %w", a.Glob, err)
	}

	copied := 0
	var errs []error
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		src := filepath.Join(filepath.FromSlash(base), filepath.FromSlash(rel))
		dst := filepath.Join(dstDir, filepath.FromSlash(rel))
		if err := copyFile(src, dst); err != nil {
			errs = append(errs, err)
			continue
		}
		copied++
	}
	return copied, errors.Join(errs...)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return &fs.PathError{Op: "copy", Path: src, Err: errors.New("not a regular file")}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

func fileURL(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// safeName keeps a label usable as a single path element.
func safeName(s string) string {
	s = strings.TrimLeft(s, ".")
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, s)
}
