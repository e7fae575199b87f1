// Package catalog loads the tool definitions workflows may reference.
package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mfenderov/browseflow/pkg/models"
)

// Catalog is an immutable set of tools. It is safe for concurrent reads.
type Catalog struct {
	tools  []models.ToolDefinition
	byName map[string]int
}

// New builds a catalog from tools. Later duplicates of a name are ignored.
func New(tools []models.ToolDefinition) *Catalog {
	c := &Catalog{byName: make(map[string]int, len(tools))}
	for _, t := range tools {
		if t.Name == "" {
			continue
		}
		if _, dup := c.byName[t.Name]; dup {
			continue
		}
		c.byName[t.Name] = len(c.tools)
		c.tools = append(c.tools, t)
	}
	return c
}

// Load reads every *.txt and *.jsonl file in dir. Each line is one JSON tool
// definition; the file base name becomes the tool category. Unparseable lines
// are skipped with a warning.
func Load(dir string) (*Catalog, error) {
	var files []string
	for _, pattern := range []string{"*.txt", "*.jsonl"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to list tool files: %w", err)
		}
		files = append(files, matches...)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("tools directory: %w", err)
	}
	sort.Strings(files)

	var tools []models.ToolDefinition
	for _, file := range files {
		loaded, err := loadFile(file)
		if err != nil {
			slog.Warn("failed to load tool file", "file", file, "error", err)
			continue
		}
		slog.Debug("loaded tool file", "file", filepath.Base(file), "tools", len(loaded))
		tools = append(tools, loaded...)
	}

	c := New(tools)
	slog.Info("loaded tool catalog", "files", len(files), "tools", c.Len())
	return c, nil
}

func loadFile(path string) ([]models.ToolDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	category := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var tools []models.ToolDefinition
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var tool models.ToolDefinition
		if err := json.Unmarshal([]byte(line), &tool); err != nil {
			slog.Warn("invalid tool JSON", "file", filepath.Base(path), "line", lineNum, "error", err)
			continue
		}
		if tool.Name == "" {
			slog.Warn("tool missing name", "file", filepath.Base(path), "line", lineNum)
			continue
		}
		if tool.Label == "" {
			tool.Label = tool.Name
		}
		if tool.Category == "" {
			tool.Category = category
		}
		tools = append(tools, tool)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return tools, nil
}

// Len returns the number of tools.
func (c *Catalog) Len() int { return len(c.tools) }

// Has reports whether a tool with name exists.
func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Get returns the tool named name.
func (c *Catalog) Get(name string) (models.ToolDefinition, bool) {
	i, ok := c.byName[name]
	if !ok {
		return models.ToolDefinition{}, false
	}
	return c.tools[i], true
}

// Names returns all tool names in load order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.tools))
	for i, t := range c.tools {
		names[i] = t.Name
	}
	return names
}

// Categories returns the distinct categories, sorted.
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	var cats []string
	for _, t := range c.tools {
		if t.Category != "" && !seen[t.Category] {
			seen[t.Category] = true
			cats = append(cats, t.Category)
		}
	}
	sort.Strings(cats)
	return cats
}

// ByCategories returns the tools in any of categories, or every tool when
// categories is empty.
func (c *Catalog) ByCategories(categories []string) []models.ToolDefinition {
	if len(categories) == 0 {
		out := make([]models.ToolDefinition, len(c.tools))
		copy(out, c.tools)
		return out
	}
	want := make(map[string]bool, len(categories))
	for _, cat := range categories {
		want[cat] = true
	}
	var out []models.ToolDefinition
	for _, t := range c.tools {
		if want[t.Category] {
			out = append(out, t)
		}
	}
	return out
}
