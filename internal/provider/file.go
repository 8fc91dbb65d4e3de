package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type fileEntry struct {
	Config  `yaml:",inline"`
	Enabled *bool `yaml:"enabled"`
}

type fileDoc struct {
	Providers []fileEntry `yaml:"providers" validate:"dive"`
}

// FileSource：YAML 配置文件
//
//	providers:
//	  - systemId: oslobysykkel
//	    codespace: YOS
//	    operatorId: YOS:Operator:oslobysykkel
//	    excludeFeeds: [vehicle_status]
type FileSource struct {
	Path string
}

// Load：读取并校验；enabled 缺省为 true
func (f FileSource) Load(_ context.Context) ([]Config, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	return parseFile(b)
}

func parseFile(b []byte) ([]Config, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	v := validator.New()
	out := make([]Config, 0, len(doc.Providers))
	seen := map[string]bool{}
	for i, e := range doc.Providers {
		if err := v.Struct(e.Config); err != nil {
			return nil, fmt.Errorf("provider #%d: %w", i, err)
		}
		if seen[e.SystemID] {
			return nil, fmt.Errorf("provider #%d: duplicate systemId %q", i, e.SystemID)
		}
		seen[e.SystemID] = true
		c := e.Config
		c.Enabled = e.Enabled == nil || *e.Enabled
		out = append(out, c)
	}
	return out, nil
}
