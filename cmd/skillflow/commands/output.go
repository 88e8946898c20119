package commands

import (
	"encoding/json"
	"fmt"
	"os"
)

// printResult writes v to stdout, as indented JSON when --json is set and
// as key-sorted flat lines otherwise.
func printResult(v map[string]any) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	for _, key := range []string{"run_id", "intent", "status", "replayed", "detail", "purged"} {
		val, ok := v[key]
		if !ok {
			continue
		}
		switch t := val.(type) {
		case map[string]any:
			data, err := json.Marshal(t)
			if err != nil {
				return err
			}
			fmt.Printf("%-9s %s\n", key+":", data)
		default:
			fmt.Printf("%-9s %v\n", key+":", val)
		}
	}
	return nil
}
