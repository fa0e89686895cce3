package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Dictionary is the merged word list of every language file in a directory.
type Dictionary struct {
	Words     []string
	Languages []string
}

// LoadDictionary reads every "<lang>.txt" file at the root of fsys, one word
// per line. Blank lines and lines starting with # are skipped.
func LoadDictionary(fsys fs.FS) (Dictionary, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return Dictionary{}, err
	}

	var dict Dictionary
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".txt" {
			continue
		}
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return Dictionary{}, err
		}
		words, err := parseWords(data)
		if err != nil {
			return Dictionary{}, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		dict.Languages = append(dict.Languages, strings.TrimSuffix(entry.Name(), ".txt"))
		dict.Words = append(dict.Words, words...)
	}

	dict.Words = lo.Uniq(dict.Words)
	slices.Sort(dict.Words)
	return dict, nil
}

// Scanner copes with both \n and \r\n line endings.
func parseWords(data []byte) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}

//go:embed censored/*.txt
var censoredFolder embed.FS

// DefaultDictionary is the word list shipped with the binary.
func DefaultDictionary() (Dictionary, error) {
	sub, err := fs.Sub(censoredFolder, "censored")
	if err != nil {
		return Dictionary{}, err
	}
	return LoadDictionary(sub)
}
