package scrub

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Allowlist holds path and content regex patterns excluded from secret
// detection. Fleet data legitimately carries token-shaped strings (RMA
// references, platform ticket IDs); the allowlist keeps those out of the
// findings.
type Allowlist struct {
	Paths   []string // file path patterns to skip
	Regexes []string // content patterns to skip
}

// LoadAllowlists merges the project .gitleaks.toml with the user allowlist
// file. Either path may be empty, and a file that does not exist is
// skipped; a file that exists but fails to parse or compile is an error.
func LoadAllowlists(projectPath, userPath string) (*Allowlist, error) {
	var files []string
	if projectPath != "" {
		files = append(files, filepath.Join(projectPath, ".gitleaks.toml"))
	}
	if userPath != "" {
		files = append(files, userPath)
	}

	merged := &Allowlist{Paths: []string{}, Regexes: []string{}}
	for _, file := range files {
		list, err := readAllowlist(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		merged.Paths = append(merged.Paths, list.Paths...)
		merged.Regexes = append(merged.Regexes, list.Regexes...)
	}

	return merged, nil
}

// readAllowlist parses one TOML allowlist and compiles every pattern so the
// detector never sees a bad one.
func readAllowlist(path string) (Allowlist, error) {
	var file struct {
		Allowlist Allowlist
	}

	if _, err := os.Stat(path); err != nil {
		return Allowlist{}, err
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return Allowlist{}, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	list := file.Allowlist
	if err := compilable("path", path, list.Paths); err != nil {
		return Allowlist{}, err
	}
	if err := compilable("content", path, list.Regexes); err != nil {
		return Allowlist{}, err
	}
	return list, nil
}

func compilable(kind, path string, patterns []string) error {
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: %s pattern %q in %s: %v", ErrInvalidRegex, kind, p, path, err)
		}
	}
	return nil
}
