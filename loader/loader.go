// Package loader reads userscripts from the filesystem.
package loader

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/yucer/userscript-proxy/userscript"
)

const scriptPattern = "*.user.js"

// Load reads every *.user.js file in the given directories and turns them
// into userscripts. Files that fail to parse or validate are logged with
// their full diagnostic and skipped; a broken script must not prevent the
// rest from loading. The error aggregates the per-file failures and is
// advisory.
func Load(dirs []string) ([]*userscript.Userscript, error) {
	var scripts []*userscript.Userscript
	var merr *multierror.Error

	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			log.Printf("skipping script directory %q: %v", dir, err)
			merr = multierror.Append(merr, fmt.Errorf("stat %q: %w", dir, err))
			continue
		}

		paths, err := filepath.Glob(filepath.Join(dir, scriptPattern))
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("glob %q: %w", dir, err))
			continue
		}
		sort.Strings(paths)

		for _, path := range paths {
			s, err := loadFile(path)
			if err != nil {
				log.Printf("skipping %q:\n%v", path, err)
				merr = multierror.Append(merr, fmt.Errorf("load %q: %w", path, err))
				continue
			}
			scripts = append(scripts, s)
		}
	}

	log.Print(summary(scripts))
	return scripts, merr.ErrorOrNil()
}

func loadFile(path string) (*userscript.Userscript, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return userscript.Create(string(content))
}

func summary(scripts []*userscript.Userscript) string {
	if len(scripts) == 0 {
		return "no userscripts loaded"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "loaded %d userscript(s):", len(scripts))
	for _, s := range scripts {
		sb.WriteString("\n    • " + s.Name())
	}
	return sb.String()
}
