package moderation

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadWords reads one word per line, skipping blanks and # comments.
func LoadWords(r io.Reader) ([]string, error) {
	unique := make(map[string]struct{})
	var words []string

	// Scanner handles \n and \r\n alike.
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, seen := unique[line]; seen {
			continue
		}
		unique[line] = struct{}{}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return words, nil
}

func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open censored words: %w", err)
	}
	defer f.Close()
	return LoadWords(f)
}
