package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tordrt/schemadiag"
	"github.com/tordrt/schemadiag/internal/config"
	"github.com/tordrt/schemadiag/internal/logging"
	"github.com/tordrt/schemadiag/internal/proof"
	"github.com/tordrt/schemadiag/internal/session"
)

// exitViolations is the exit code for --fail-on-violation when something is violated
const exitViolations = 2

// errViolations reports that diagnostics found violations
var errViolations = errors.New("constraint violations found")

var (
	cfgPath         string
	verbose         bool
	dbURL           string
	mysqlURL        string
	sqlitePath      string
	outputFile      string
	outputDir       string
	tables          string
	excludeTables   string
	schemaName      string
	format          string
	concurrency     int
	sampleLimit     int
	notNull         bool
	failOnViolation bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "schemadiag",
	Short: "Diagnose live data against declared database constraints",
	Long: `Schemadiag connects to PostgreSQL, MySQL, or SQLite, checks every declared
constraint against the live data, and proposes a proof-annotated recovery plan
for each violation. Repair SQL is advisory and never executed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgPath, "config", "c", "", "Config file (YAML)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	pf.StringVar(&dbURL, "db-url", "", "Database URL (postgres://, mysql://, or sqlite://)")
	pf.StringVar(&mysqlURL, "mysql-url", "", "MySQL connection string")
	pf.StringVar(&sqlitePath, "sqlite", "", "SQLite database file path")
	pf.StringVarP(&tables, "tables", "t", "", "Specific tables (comma-separated, optional)")
	pf.StringVar(&excludeTables, "exclude", "", "Tables to skip (comma-separated)")
	pf.StringVarP(&schemaName, "schema", "s", "", "Database schema name (default: public for PostgreSQL)")

	rootCmd.AddCommand(schemaCmd, diagnoseCmd, recoverCmd, timelineCmd, verifyProofsCmd, ipcCmd, serveCmd, configCmd)

	for _, cmd := range []*cobra.Command{schemaCmd, diagnoseCmd, recoverCmd} {
		cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, markdown or json")
		cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	}
	for _, cmd := range []*cobra.Command{schemaCmd, diagnoseCmd} {
		cmd.Flags().StringVarP(&outputDir, "output-dir", "d", "", "Output directory for multi-file output")
	}
	for _, cmd := range []*cobra.Command{diagnoseCmd, recoverCmd, ipcCmd, serveCmd} {
		cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Constraint checks run at once")
		cmd.Flags().IntVar(&sampleLimit, "samples", 5, "Sample tuples per violation (1-5)")
		cmd.Flags().BoolVar(&notNull, "not-null", false, "Also scan non-nullable columns for NULLs")
	}
	diagnoseCmd.Flags().BoolVar(&failOnViolation, "fail-on-violation", false, "Exit with status 2 when any constraint is violated")
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
}

// applyFlags lets explicitly set flags override the loaded configuration
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if verbose {
		c.Logging.Level = "debug"
	}
	if flags.Changed("concurrency") {
		c.Diagnostics.Concurrency = concurrency
	}
	if flags.Changed("samples") {
		c.Diagnostics.SampleLimit = sampleLimit
	}
	if flags.Changed("not-null") {
		c.Diagnostics.NotNull = notNull
	}
	if list := parseTableList(tables); list != nil {
		c.Database.Tables = list
	}
	if list := parseTableList(excludeTables); list != nil {
		c.Database.ExcludeTables = list
	}
	if schemaName != "" {
		c.Database.Schemas = []string{schemaName}
	}
	if addr, _ := flags.GetString("addr"); addr != "" {
		c.Server.Addr = addr
	}
}

// resolveURL picks the database URL from the connection flags, falling back to the config
func resolveURL() (string, error) {
	var urls []string
	if dbURL != "" {
		urls = append(urls, dbURL)
	}
	if mysqlURL != "" {
		if strings.HasPrefix(mysqlURL, "mysql://") {
			urls = append(urls, mysqlURL)
		} else {
			urls = append(urls, "mysql://"+mysqlURL)
		}
	}
	if sqlitePath != "" {
		urls = append(urls, "sqlite://"+sqlitePath)
	}

	switch len(urls) {
	case 0:
		if cfg != nil && cfg.Database.URL != "" {
			return cfg.Database.URL, nil
		}
		return "", fmt.Errorf("one of --db-url, --mysql-url, or --sqlite must be specified (or database.url in config)")
	case 1:
		return urls[0], nil
	default:
		return "", fmt.Errorf("only one of --db-url, --mysql-url, or --sqlite can be specified")
	}
}

// parseTableList splits a comma-separated list, trimming spaces
func parseTableList(s string) []string {
	if s == "" {
		return nil
	}
	list := strings.Split(s, ",")
	for i, t := range list {
		list[i] = strings.TrimSpace(t)
	}
	return list
}

// libraryOptions maps the configuration onto a one-shot run
func libraryOptions(c *config.Config, l *zap.Logger) *schemadiag.Options {
	return &schemadiag.Options{
		Tables:        c.Database.Tables,
		ExcludeTables: c.Database.ExcludeTables,
		Schemas:       c.Database.Schemas,
		Concurrency:   c.Diagnostics.Concurrency,
		SampleLimit:   c.Diagnostics.SampleLimit,
		NotNull:       c.Diagnostics.NotNull,
		Logger:        l,
	}
}

// sessionOptions maps the configuration onto an interactive session
func sessionOptions(c *config.Config, l *zap.Logger) (session.Options, error) {
	timeout, err := c.ProofTimeout()
	if err != nil {
		return session.Options{}, err
	}
	o := libraryOptions(c, l)
	opts := session.Options{
		Logger:        l,
		Concurrency:   o.Concurrency,
		SampleLimit:   o.SampleLimit,
		NotNull:       o.NotNull,
		Verifier:      proof.NewVerifier(c.Proofs.LakeBinary, timeout, l),
		ProofCorePath: c.Proofs.CorePath,
	}
	opts.Extract.Schemas = o.Schemas
	opts.Extract.Tables = o.Tables
	opts.Extract.ExcludeTables = o.ExcludeTables
	return opts, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errViolations) {
			os.Exit(exitViolations)
		}
		os.Exit(1)
	}
}
