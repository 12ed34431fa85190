package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"grimm.is/hearth/internal/brand"
	"grimm.is/hearth/internal/tasks"
	"grimm.is/hearth/internal/ui"
	"grimm.is/hearth/internal/ui/tui"
)

var taskColumns = []ui.TableColumn{
	{Key: "id", Label: "ID"},
	{Key: "name", Label: "Task"},
	{Key: "data", Label: "Data"},
	{Key: "created_at", Label: "Queued", Format: "date"},
}

// RunTasks prints the task rows waiting for the config cron.
func RunTasks(args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	configFile := fs.String("config", brand.DefaultConfigPath(), "Configuration file")
	fs.StringVar(configFile, "c", brand.DefaultConfigPath(), "Configuration file (short)")
	asJSON := fs.Bool("json", false, "Print JSON")
	clearAll := fs.Bool("clear", false, "Delete every pending task row")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, *configFile, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if *clearAll {
		n, err := tasks.Clear(ctx, rt.db.SQL())
		if err != nil {
			return err
		}
		Printer.Printf("Deleted %d task rows\n", n)
		return nil
	}

	pending, err := tasks.Pending(ctx, rt.db.SQL())
	if err != nil {
		return err
	}
	return printTasks(os.Stdout, pending, *asJSON)
}

func printTasks(out io.Writer, pending []tasks.Task, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(pending)
	}
	if len(pending) == 0 {
		Printer.Fprintf(out, "No pending tasks\n")
		return nil
	}
	rows := make([]ui.Row, 0, len(pending))
	for _, t := range pending {
		rows = append(rows, ui.Row{
			"id":         t.ID,
			"name":       t.Name,
			"data":       t.Data,
			"created_at": t.CreatedAt,
		})
	}
	fmt.Fprintln(out, tui.RenderTable(Printer, taskColumns, rows))
	return nil
}
