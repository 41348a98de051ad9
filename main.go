// Package main is the doc2md command: PDF, DOC and DOCX to Markdown from the
// command line, over HTTP, or as an MCP stdio server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Cortexa-LLC/mcp/src/doc2md/config"
	"github.com/Cortexa-LLC/mcp/src/doc2md/converter"
	"github.com/Cortexa-LLC/mcp/src/doc2md/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Server identity constants.
const (
	serverName    = "doc2md"
	serverVersion = "0.1.0"
)

// Viper keys for the persistent flags. They double as DOC2MD_* env names.
const (
	keyConfig    = "config"
	keyLogLevel  = "log_level"
	keyLogFormat = "log_format"
)

// documentConverter is what the commands need from converter.Converter.
type documentConverter interface {
	Convert(ctx context.Context, req converter.Request) (string, error)
	ConvertBatch(ctx context.Context, req converter.BatchRequest) (converter.BatchResult, error)
	Info() string
	Close() error
}

// app carries state shared by the subcommands.
type app struct {
	v *viper.Viper

	// pdfBackend is the --pdf-backend flag only. DOC2MD_PDF_BACKEND is read
	// by config, which ignores unknown values.
	pdfBackend string

	// newConverter is swapped in tests.
	newConverter func(cfg *config.Config, log zerolog.Logger) documentConverter
}

func newApp() *app {
	return &app{
		v: viper.New(),
		newConverter: func(cfg *config.Config, log zerolog.Logger) documentConverter {
			return converter.New(cfg, converter.WithLogger(log))
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "doc2md",
		Short: "Convert PDF, DOC and DOCX files to Markdown",
		Long: `doc2md converts PDF, DOC and DOCX documents into a folder holding the
Markdown file and the images it references.

Each entry point is a subcommand: convert single files, batch a directory,
serve the HTTP upload API, or run as an MCP stdio server.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "YAML config file (env DOC2MD_CONFIG)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: console or json")
	pf.StringVar(&a.pdfBackend, "pdf-backend", "", "PDF engine: fitz or text")

	_ = a.v.BindPFlag(keyConfig, pf.Lookup("config"))
	_ = a.v.BindPFlag(keyLogLevel, pf.Lookup("log-level"))
	_ = a.v.BindPFlag(keyLogFormat, pf.Lookup("log-format"))
	a.v.SetEnvPrefix("DOC2MD")
	a.v.AutomaticEnv()

	root.AddCommand(
		newConvertCmd(a),
		newBatchCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
		newInfoCmd(a),
	)
	return root
}

// loadConfig resolves the runtime configuration: defaults, then the config
// file or environment, then flags.
func (a *app) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if path := a.v.GetString(keyConfig); path != "" {
		c, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = config.Load()
	}

	if v := a.v.GetString(keyLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := a.v.GetString(keyLogFormat); v != "" {
		cfg.LogFormat = v
	}
	switch v := a.pdfBackend; v {
	case "":
	case config.BackendFitz, config.BackendText:
		cfg.PDFBackend = v
	default:
		return nil, fmt.Errorf("unknown pdf backend %q (want %s or %s)", v, config.BackendFitz, config.BackendText)
	}
	return cfg, nil
}

// setup loads the config and builds the logger and converter for a command.
func (a *app) setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, documentConverter, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	log := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	return cfg, log, a.newConverter(cfg, log), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(newApp()).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
