package upload

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ImagePattern selects image files when a directory or glob is expanded.
const ImagePattern = "*.{jpg,jpeg,png,gif,webp,bmp}"

// Expand resolves file, directory and glob arguments into a deduplicated list of file
// paths, preserving argument order. Directories are walked recursively and filtered
// with ImagePattern, as are glob matches; explicit file arguments are kept as given.
func Expand(args []string) ([]string, error) {
	var (
		out  []string
		seen = make(map[string]bool)
	)

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		if hasMeta(arg) {
			matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("expand %q: %w", arg, err)
			}
			found := false
			for _, m := range matches {
				if IsImageName(m) {
					add(m)
					found = true
				}
			}
			if !found {
				return nil, fmt.Errorf("no image files match %q", arg)
			}
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", arg, err)
		}

		if !info.IsDir() {
			add(arg)
			continue
		}

		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if IsImageName(d.Name()) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %q: %w", arg, err)
		}
	}

	return out, nil
}

// IsImageName reports whether name has a common image extension.
func IsImageName(name string) bool {
	ok, _ := doublestar.Match(ImagePattern, strings.ToLower(filepath.Base(name)))
	return ok
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
