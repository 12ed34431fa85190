package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/joho/godotenv"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

var settingsSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "settings", LabelNames: []string{"group"}},
	},
}

// LoadFile reads the config at path. A missing file yields Default().
// A .env file in the same directory is loaded into the environment first;
// variables already set win.
func LoadFile(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadHCL(data, path)
}

// LoadHCL decodes HCL source. filename is used in diagnostics.
func LoadHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}

	ctx := evalContext()
	content, remain, diags := file.Body.PartialContent(settingsSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}

	var cfg Config
	if diags := gohcl.DecodeBody(remain, ctx, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}

	for _, block := range content.Blocks {
		values, err := decodeSettings(block, ctx)
		if err != nil {
			return nil, err
		}
		cfg.Settings = append(cfg.Settings, SettingsBlock{Group: block.Labels[0], Values: values})
	}

	if err := checkSchemaVersion(cfg.SchemaVersion); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeSettings evaluates every attribute of a settings block to the
// string stored in panel_settings. Booleans become "1" and "0".
func decodeSettings(block *hcl.Block, ctx *hcl.EvalContext) (map[string]string, error) {
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("settings %q: %s", block.Labels[0], diags.Error())
	}
	values := make(map[string]string, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(ctx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("settings %q: %s", block.Labels[0], diags.Error())
		}
		s, err := settingString(val)
		if err != nil {
			return nil, fmt.Errorf("settings %s.%s: %w", block.Labels[0], name, err)
		}
		values[name] = s
	}
	return values, nil
}

func settingString(val cty.Value) (string, error) {
	if val.IsNull() {
		return "", errors.New("value must not be null")
	}
	if !val.IsKnown() {
		return "", errors.New("value is not known")
	}
	if val.Type() == cty.Bool {
		if val.True() {
			return "1", nil
		}
		return "0", nil
	}
	if val.Type().IsListType() || val.Type().IsTupleType() || val.Type().IsSetType() {
		// id lists such as system.defaultip are stored comma separated
		var parts []string
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			s, err := settingString(v)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("cannot use %s as a setting", val.Type().FriendlyName())
	}
	return str.AsString(), nil
}

// evalContext exposes the process environment as env.NAME and a few string
// functions.
func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !hclsyntax.ValidIdentifier(name) {
			continue
		}
		env[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
		Functions: map[string]function.Function{
			"lower":     stdlib.LowerFunc,
			"upper":     stdlib.UpperFunc,
			"trimspace": stdlib.TrimSpaceFunc,
			"join":      stdlib.JoinFunc,
			"coalesce":  stdlib.CoalesceFunc,
			"format":    stdlib.FormatFunc,
		},
	}
}

func checkSchemaVersion(v string) error {
	if v == "" {
		return nil
	}
	major, _, ok := strings.Cut(v, ".")
	current, _, _ := strings.Cut(CurrentSchemaVersion, ".")
	if !ok || major != current {
		return fmt.Errorf("unsupported schema_version %q (this build reads %s)", v, CurrentSchemaVersion)
	}
	return nil
}
