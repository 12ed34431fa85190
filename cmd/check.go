package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/hearth/internal/brand"
	"grimm.is/hearth/internal/config"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/store"
)

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(configFile string, verbose bool) error {
	return runCheck(os.Stdout, configFile, verbose)
}

func runCheck(out io.Writer, configFile string, verbose bool) error {
	if configFile == "" {
		return fmt.Errorf("usage: %s check [-v] <config-file>\nExample: %s check -v /etc/hearth/hearth.hcl", brand.BinaryName, brand.BinaryName)
	}
	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("configuration file %s does not exist", configFile)
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	// Seed a scratch database so settings blocks are checked against the
	// real schema.
	ctx := context.Background()
	db, err := store.OpenMemory(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	overrides := cfg.SettingOverrides()
	if err := settings.Seed(ctx, db.SQL(), overrides, true); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	st := settings.New()
	if err := st.Load(ctx, db.SQL()); err != nil {
		return err
	}

	Printer.Fprintf(out, "Configuration valid!\n")
	Printer.Fprintf(out, "Schema Version: %s\n", cfg.SchemaVersion)
	Printer.Fprintf(out, "Database: %s\n", cfg.Database.Path)
	Printer.Fprintf(out, "Listen: %s (tls: %v)\n", cfg.Web.Listen, cfg.Web.TLSCert != "")
	Printer.Fprintf(out, "Settings overridden: %d\n", len(overrides))

	unknown := unknownSettings(overrides)
	for _, key := range unknown {
		Printer.Fprintf(out, "Warning: unknown setting %s\n", key)
	}

	if verbose {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SETTING\tVALUE")
		for _, kv := range st.All() {
			fmt.Fprintf(w, "%s\t%s\n", kv.Key, kv.Value)
		}
		w.Flush()

		diff, err := settingsDiff(overrides)
		if err != nil {
			return err
		}
		if diff != "" {
			fmt.Fprintln(out)
			fmt.Fprint(out, diff)
		}
	}
	return nil
}

func unknownSettings(overrides map[string]string) []string {
	var out []string
	for key := range overrides {
		if _, ok := settings.Defaults[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// settingsDiff shows how the config file changes the built-in defaults.
func settingsDiff(overrides map[string]string) (string, error) {
	lines := func(values map[string]string) []string {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, k+" = "+values[k]+"\n")
		}
		return out
	}
	effective := make(map[string]string, len(settings.Defaults))
	for k, v := range settings.Defaults {
		effective[k] = v
	}
	for k, v := range overrides {
		effective[k] = v
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        lines(settings.Defaults),
		B:        lines(effective),
		FromFile: "defaults",
		ToFile:   "configured",
		Context:  0,
	})
}
