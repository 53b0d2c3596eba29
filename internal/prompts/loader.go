// Package prompts loads the LLM prompt templates embedded in the binary.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

var (
	cache   = make(map[string]map[string]string)
	cacheMu sync.RWMutex
)

var placeholderRe = regexp.MustCompile(`\{\{\.[A-Za-z]+\}\}`)

// Get returns the prompt stored under key in filename (e.g. "matching.json").
func Get(filename, key string) (string, error) {
	prompts, err := loadFile(filename)
	if err != nil {
		return "", err
	}
	prompt, ok := prompts[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return prompt, nil
}

// Format replaces {{.Key}} placeholders with values from data.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		result = strings.ReplaceAll(result, "{{."+key+"}}", value)
	}
	return result
}

// Render loads a prompt and fills it. Placeholders left without a value are an error.
func Render(filename, key string, data map[string]string) (string, error) {
	tmpl, err := Get(filename, key)
	if err != nil {
		return "", err
	}
	out := Format(tmpl, data)
	if missing := placeholderRe.FindAllString(out, -1); len(missing) > 0 {
		return "", fmt.Errorf("prompt %s/%s has unfilled placeholders: %s", filename, key, strings.Join(missing, ", "))
	}
	return out, nil
}

func loadFile(filename string) (map[string]string, error) {
	cacheMu.RLock()
	prompts, ok := cache[filename]
	cacheMu.RUnlock()
	if ok {
		return prompts, nil
	}

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	cacheMu.Lock()
	cache[filename] = prompts
	cacheMu.Unlock()
	return prompts, nil
}
