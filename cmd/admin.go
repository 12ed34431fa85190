package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"grimm.is/hearth/internal/brand"
	"grimm.is/hearth/internal/panel"
	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/ui"
	"grimm.is/hearth/internal/ui/tui"
)

// cliCaller acts for the operator at the console. Audit rows name it "cli".
func cliCaller() *panel.Caller {
	return &panel.Caller{
		Admin: &store.Admin{
			LoginName:            "cli",
			ChangeServerSettings: true,
			Customers:            -1,
			CustomersSeeAll:      true,
			Domains:              -1,
			DomainsSeeAll:        true,
			CanEditPHPSettings:   true,
			IP:                   -1,
		},
		IP: "127.0.0.1",
	}
}

// RunAdmin handles "admin create" and "admin list".
func RunAdmin(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s admin <create|list> [flags]", brand.BinaryName)
	}
	switch args[0] {
	case "create", "add":
		return runAdminCreate(args[1:], os.Stdin, os.Stdout)
	case "list", "ls":
		return runAdminList(args[1:], os.Stdout)
	default:
		return fmt.Errorf("unknown admin command %q", args[0])
	}
}

func runAdminCreate(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("admin create", flag.ContinueOnError)
	configFile := fs.String("config", brand.DefaultConfigPath(), "Configuration file")
	fs.StringVar(configFile, "c", brand.DefaultConfigPath(), "Configuration file (short)")
	login := fs.String("login", "", "Login name; prompts for every field when empty")
	name := fs.String("name", "", "Full name")
	email := fs.String("email", "", "E-mail address")
	password := fs.String("password", "", "Password, generated when empty")
	language := fs.String("language", "", "Default language")
	super := fs.Bool("superadmin", false, "Grant server settings and unlimited resources")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, *configFile, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	svc := panel.New(panel.Options{DB: rt.db, Settings: rt.settings, Logger: rt.logger.WithComponent("panel")})
	caller := cliCaller()

	values := map[string]string{}
	if *login == "" {
		ips, err := ipOptions(ctx, svc, caller)
		if err != nil {
			return err
		}
		form := ui.AdminAddForm(ui.FormContext{Settings: rt.settings, IPs: ips})
		err = tui.RunForm(form, values, tui.FormOptions{
			Printer:    Printer,
			Input:      in,
			Output:     out,
			Accessible: !isTerminal(in),
		})
		if err != nil {
			return err
		}
	} else {
		values["new_loginname"] = *login
		values["name"] = *name
		values["email"] = *email
		values["admin_password"] = *password
		values["def_language"] = *language
		if *super {
			for _, key := range []string{"change_serversettings", "customers_see_all", "domains_see_all", "caneditphpsettings"} {
				values[key] = "1"
			}
			values["customers"] = "-1"
			values["domains"] = "-1"
		}
	}

	result, err := svc.Execute(ctx, caller, "Admins.add", adminParams(values))
	if err != nil {
		return err
	}
	created := result.(*panel.CreatedAdmin)
	Printer.Fprintf(out, "Created admin %s (id %d)\n", created.LoginName, created.AdminID)
	if created.Password != "" {
		Printer.Fprintf(out, "Generated password: %s\n", created.Password)
	}
	return nil
}

// adminParams encodes form answers as Admins.add parameters. Empty answers
// are left out so the command applies its defaults.
func adminParams(values map[string]string) []byte {
	params := make(map[string]string, len(values))
	for k, v := range values {
		if v != "" {
			params[k] = v
		}
	}
	raw, _ := json.Marshal(params)
	return raw
}

func ipOptions(ctx context.Context, svc *panel.Service, c *panel.Caller) ([]ui.SelectOption, error) {
	out, err := svc.IpsAndPortsList(ctx, c, panel.IPPortListParams{})
	if err != nil {
		return nil, err
	}
	var opts []ui.SelectOption
	for _, p := range out.(panel.Listing[panel.IPPort]).List {
		opts = append(opts, ui.SelectOption{
			Value: strconv.FormatInt(p.ID, 10),
			Label: fmt.Sprintf("%s:%d", p.IP, p.Port),
		})
	}
	return opts, nil
}

func runAdminList(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("admin list", flag.ContinueOnError)
	configFile := fs.String("config", brand.DefaultConfigPath(), "Configuration file")
	fs.StringVar(configFile, "c", brand.DefaultConfigPath(), "Configuration file (short)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, *configFile, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	admins, err := store.ListAdmins(ctx, rt.db.SQL())
	if err != nil {
		return err
	}
	rows := make([]ui.Row, 0, len(admins))
	for _, a := range admins {
		rows = append(rows, ui.Row{
			"adminid":   a.AdminID,
			"loginname": a.LoginName,
			"name":      a.Name,
			"email":     a.Email,
			"lastlogin": a.LastLoginSucc,
		})
	}
	cols := []ui.TableColumn{
		{Key: "adminid", Label: "ID"},
		{Key: "loginname", Label: "myloginname"},
		{Key: "name", Label: "myname"},
		{Key: "email", Label: "myemail"},
		{Key: "lastlogin", Label: "Last login", Format: "date"},
	}
	fmt.Fprintln(out, tui.RenderTable(Printer, cols, rows))
	return nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
