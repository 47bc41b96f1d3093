package main

import (
	"clusterdir/internal/types"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
)

// printValue writes v to stdout in the selected output format.
func printValue(v any) error {
	return writeValue(os.Stdout, outputFormat, v)
}

func writeValue(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// parseProps turns key=value pairs into props. Values that parse as JSON keep their
// structure; anything else is a string.
func parseProps(pairs []string) (types.Props, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	props := make(types.Props, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		props[k] = types.DecodeValue(v)
	}
	return props, nil
}

// readJSONFile decodes a JSON file, or stdin when path is "-".
func readJSONFile(path string, v any) error {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
