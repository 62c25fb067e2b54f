package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// printResult writes v to w as JSON when jsonOutput is set, otherwise via
// plain (a human-readable fallback built by the caller).
func printResult(w io.Writer, jsonOutput bool, v any, plain func()) error {
	if !jsonOutput {
		plain()
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, format, a...)
}
