package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	forgeloam "github.com/aretw0/forge/pkg/adapters/loam"
	"github.com/aretw0/forge/pkg/domain"
	"gopkg.in/yaml.v3"
)

// readDocument loads a document from path. Markdown files are split into
// sections on "## " headings; anything else is parsed as YAML, which also
// covers JSON. "-" reads YAML from stdin.
func readDocument(path string, stdin io.Reader) (domain.Document, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to read document: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return domain.Document{Sections: forgeloam.ParseBody(string(data))}, nil
	}

	var doc domain.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.Document{}, &domain.ValidationError{Field: "document", Reason: err.Error()}
	}
	return doc, nil
}

// parsePairs turns key=value flags into a map.
func parsePairs(flag string, pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, &domain.ValidationError{Field: flag, Reason: fmt.Sprintf("%q is not key=value", p)}
		}
		out[k] = v
	}
	return out, nil
}

func parsePins(pairs []string) (map[string]int64, error) {
	raw, err := parsePairs("pin", pairs)
	if err != nil || raw == nil {
		return nil, err
	}
	pins := make(map[string]int64, len(raw))
	for slug, s := range raw {
		seq, err := parseSequence(s)
		if err != nil {
			return nil, err
		}
		pins[slug] = seq
	}
	return pins, nil
}

func parseSequence(s string) (int64, error) {
	seq, err := strconv.ParseInt(s, 10, 64)
	if err != nil || seq < 1 {
		return 0, &domain.ValidationError{Field: "sequence", Reason: fmt.Sprintf("%q is not a positive integer", s)}
	}
	return seq, nil
}

func actor(name string) string {
	if name != "" {
		return name
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
