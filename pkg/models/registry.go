// Package models holds the catalog of Whisper models the service and the
// download helper know about: canonical names, distribution file names,
// download URLs and published checksums.
package models

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "small"

// Model describes one downloadable Whisper model.
type Model struct {
	Name     string
	FileName string
	URL      string
	SHA256   string
}

var registry = map[string]Model{
	"tiny": {
		Name:     "tiny",
		FileName: "ggml-tiny.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin",
		SHA256:   "be07e048e1e599ad46341c8d2a135645097a538221678b7acdd1b1919c6e1b21",
	},
	"base": {
		Name:     "base",
		FileName: "ggml-base.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin",
		SHA256:   "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe",
	},
	"small": {
		Name:     "small",
		FileName: "ggml-small.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin",
		SHA256:   "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b",
	},
	"medium": {
		Name:     "medium",
		FileName: "ggml-medium.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin",
		SHA256:   "6c14d5adee5f86394037b4e4e8b59f1673b6cee10e3cf0b11bbdbee79c156208",
	},
	"large-v3": {
		Name:     "large-v3",
		FileName: "ggml-large-v3.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin",
		SHA256:   "64d182b440b98d5203c4f9bd541544d84c605196c4f7b845dfa11fb23594d1e2",
	},
}

// Names returns the sorted list of known model names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the model with the given name.
func Lookup(name string) (Model, bool) {
	model, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return model, ok
}

// Resolve returns the model for name, or an error listing the known names.
func Resolve(name string) (Model, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultModel
	}
	model, ok := Lookup(name)
	if !ok {
		return Model{}, fmt.Errorf("unknown model %q (known models: %s)", name, strings.Join(Names(), ", "))
	}
	return model, nil
}
