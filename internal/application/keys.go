package application

import (
	"bufio"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"

	"github.com/jobrunner/charttiler/internal/domain"
)

const userKeyPrefix = "UserKey:"

// readUserKey returns the UserKey entry of the directory's Chartinfo.txt,
// the key every FormatA cell of the directory is encrypted with.
func readUserKey(dir string) (string, error) {
	f, err := openFold(dir, domain.ChartInfoFile)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if key, ok := strings.CutPrefix(line, userKeyPrefix); ok {
			if key = strings.TrimSpace(key); key != "" {
				return key, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", domain.ErrKeyNotFound
}

// keyList is the XML document that carries the per cell keys of FormatB
// charts.
type keyList struct {
	Charts []struct {
		FileName    string `xml:"FileName"`
		RInstallKey string `xml:"RInstallKey"`
	} `xml:"Chart"`
}

// readKeyList merges the key lists of a directory into a map from cell base
// name (no extension) to key. Files that do not parse are skipped.
func readKeyList(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), domain.KeyListExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name())) //#nosec G304 -- file from directory listing
		if err != nil {
			continue
		}
		var list keyList
		if err := xml.Unmarshal(data, &list); err != nil {
			continue
		}
		for _, c := range list.Charts {
			name := strings.TrimSpace(c.FileName)
			key := strings.TrimSpace(c.RInstallKey)
			if name == "" || key == "" {
				continue
			}
			keys[stem(name)] = key
		}
	}
	return keys, nil
}

// openFold opens name in dir, ignoring case.
func openFold(dir, name string) (*os.File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), name) {
			return os.Open(filepath.Join(dir, e.Name())) //#nosec G304 -- file from directory listing
		}
	}
	return nil, domain.ErrKeyNotFound
}

func stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
