package main

import (
	"flag"
	"os"

	"grimm.is/hearth/cmd"
	"grimm.is/hearth/internal/brand"
	"grimm.is/hearth/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		configFile := serveFlags.String("config", brand.DefaultConfigPath(), "Configuration file")
		serveFlags.StringVar(configFile, "c", brand.DefaultConfigPath(), "Configuration file (short)")
		serveFlags.Parse(os.Args[2:])

		if err := cmd.RunServe(*configFile); err != nil {
			printer.Fprintf(os.Stderr, "Serve failed: %v\n", err)
			os.Exit(1)
		}

	case "migrate":
		migrateFlags := flag.NewFlagSet("migrate", flag.ExitOnError)
		configFile := migrateFlags.String("config", brand.DefaultConfigPath(), "Configuration file")
		migrateFlags.StringVar(configFile, "c", brand.DefaultConfigPath(), "Configuration file (short)")
		force := migrateFlags.Bool("force-settings", false, "Overwrite stored settings with the config file")
		migrateFlags.Parse(os.Args[2:])

		if err := cmd.RunMigrate(*configFile, *force); err != nil {
			printer.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}

	case "admin":
		if err := cmd.RunAdmin(os.Args[2:]); err != nil {
			printer.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "tasks":
		if err := cmd.RunTasks(os.Args[2:]); err != nil {
			printer.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Print every setting and the changes to the defaults")
		checkFlags.BoolVar(verbose, "v", false, "Verbose (short)")
		checkFlags.Parse(os.Args[2:])

		configFile := brand.DefaultConfigPath()
		if checkFlags.NArg() > 0 {
			configFile = checkFlags.Arg(0)
		}
		if err := cmd.RunCheck(configFile, *verbose); err != nil {
			printer.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "version":
		printer.Printf("%s version %s\n", brand.Name, brand.Version)
		printer.Printf("Build: %s\n", brand.BuildTime)
		printer.Printf("Commit: %s\n", brand.GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Commands:
  serve     Run the panel API
            Options: --config (-c) <file>
  migrate   Create or upgrade the database and seed settings
            Options: --config (-c) <file>, --force-settings
  admin     Manage admin accounts
            Subcommands: create, list
            create options: --login, --name, --email, --password, --language, --superadmin
  tasks     Show task rows waiting for the config cron
            Options: --json, --clear
  check     Validate configuration file
            Options: --verbose (-v)
  version   Print version information

Examples:
  %s migrate -c /etc/hearth/hearth.hcl
  %s admin create                   # Prompts for every field
  %s serve
`, brand.Name, brand.Description, brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName)
}
