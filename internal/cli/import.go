package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/auditlens/internal/review"
	"github.com/dshills/auditlens/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load findings from a JSON or YAML file into the finding store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		findings, err := readFindings(args[0])
		if err != nil {
			exitCode = ExitUsageError
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			exitCode = ExitRuntimeError
			return fmt.Errorf("opening finding store: %w", err)
		}
		defer st.Close(ctx)

		for _, f := range findings {
			if err := st.Save(ctx, f); err != nil {
				exitCode = ExitRuntimeError
				return fmt.Errorf("saving finding %s: %w", f.ID, err)
			}
		}
		fmt.Fprintf(os.Stdout, "Imported %d findings.\n", len(findings))
		return nil
	},
}

// readFindings decodes a list of findings. YAML is converted through JSON
// so both formats share the json field names.
func readFindings(path string) ([]review.Finding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("converting %s: %w", path, err)
		}
	}

	var findings []review.Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for i := range findings {
		if strings.TrimSpace(findings[i].ID) == "" {
			return nil, fmt.Errorf("finding %d has no id", i+1)
		}
		if findings[i].ReviewStatus == "" {
			findings[i].ReviewStatus = review.StatusPending
		}
		if declared := findings[i].DeclaredSeverity; declared != "" {
			sev, ok := review.ParseSeverity(string(declared))
			if !ok {
				return nil, fmt.Errorf("finding %s: unknown severity %q", findings[i].ID, declared)
			}
			findings[i].DeclaredSeverity = sev
		}
	}
	return findings, nil
}
