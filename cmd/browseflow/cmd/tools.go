package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	toolsCategory string
	toolsFormat   string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tool catalog",
	Long: `List the tools workflow steps may reference, loaded from the
configured tools directory (one file per category).

Examples:
  browseflow tools
  browseflow tools --category sheets --format json`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)

	toolsCmd.Flags().StringVar(&toolsCategory, "category", "", "only list tools in this category")
	toolsCmd.Flags().StringVar(&toolsFormat, "format", "text", "Output format: text or json")
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	c := loadCatalog(&cfg)

	var categories []string
	if toolsCategory != "" {
		categories = []string{toolsCategory}
	}
	tools := c.ByCategories(categories)

	if toolsFormat == "json" {
		output, err := json.MarshalIndent(tools, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	if len(tools) == 0 {
		fmt.Println("No tools found.")
		return nil
	}

	fmt.Printf("%d tools in %d categories:\n", len(tools), len(c.Categories()))
	current := ""
	for _, t := range tools {
		if t.Category != current {
			current = t.Category
			fmt.Printf("\n[%s]\n", current)
		}
		desc := t.Description
		if len(desc) > 80 {
			desc = desc[:80] + "..."
		}
		line := "  " + t.Name
		if req := t.RequiredParameters(); len(req) > 0 {
			line += "(" + strings.Join(req, ", ") + ")"
		}
		fmt.Printf("%-40s %s\n", line, desc)
	}
	return nil
}
