package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Cortexa-LLC/mcp/src/doc2md/converter"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// MCP tool parameter key constants, shared between schema definitions and
// argument extraction so a typo in one place is caught by the other.
const (
	argPath         = "path"
	argOutputDir    = "output_dir"
	argInlineImages = "inline_images"
	argInputDir     = "input_dir"
	argRecursive    = "recursive"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as an MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, conv, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer conv.Close()

			s := server.NewMCPServer(serverName, serverVersion)
			registerTools(s, conv, cfg.OutputDir)
			log.Info().Str("output_dir", cfg.OutputDir).Msg("mcp server on stdio")
			return server.ServeStdio(s)
		},
	}
}

// registerTools binds MCP tool definitions to their handlers.
// It accepts the documentConverter interface so tests can inject a fake.
func registerTools(s *server.MCPServer, conv documentConverter, outputDir string) {
	// convert_document: one file to a Markdown folder
	s.AddTool(
		mcp.NewTool("convert_document",
			mcp.WithDescription("Convert a PDF, DOC or DOCX file to Markdown. "+
				"Writes <output_dir>/<name>/<name>.md plus a <name>_images folder and returns the Markdown. "+
				"DOC files need LibreOffice (soffice) installed."),
			mcp.WithString(argPath,
				mcp.Required(),
				mcp.Description("Absolute path of the PDF, DOC or DOCX file"),
			),
			mcp.WithString(argOutputDir,
				mcp.Description("Output root; defaults to the server's configured output directory"),
			),
			mcp.WithBoolean(argInlineImages,
				mcp.Description("Embed images as data URIs instead of writing an images folder"),
			),
		),
		convertDocumentHandler(conv, outputDir),
	)

	// convert_directory: batch over a directory
	s.AddTool(
		mcp.NewTool("convert_directory",
			mcp.WithDescription("Convert every PDF, DOC and DOCX file in a directory and report per-file results."),
			mcp.WithString(argInputDir,
				mcp.Required(),
				mcp.Description("Absolute path of the directory to convert"),
			),
			mcp.WithString(argOutputDir,
				mcp.Description("Output root; defaults to the input directory"),
			),
			mcp.WithBoolean(argRecursive,
				mcp.Description("Include sub-directories, mirroring their layout under the output root"),
			),
		),
		convertDirectoryHandler(conv),
	)

	// get_conversion_info: formats, engines and configuration
	s.AddTool(
		mcp.NewTool("get_conversion_info",
			mcp.WithDescription("Return supported file formats, engine status, and active configuration."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(conv.Info()), nil
		},
	)
}

func convertDocumentHandler(conv documentConverter, outputDir string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, ok := req.Params.Arguments[argPath].(string)
		if !ok || path == "" {
			return mcp.NewToolResultError(argPath + " is required"), nil
		}
		root := outputDir
		if v, ok := req.Params.Arguments[argOutputDir].(string); ok && v != "" {
			root = v
		}
		inline, _ := req.Params.Arguments[argInlineImages].(bool)

		mdPath, err := conv.Convert(ctx, converter.Request{SourcePath: path, OutputRoot: root, InlineImages: inline})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := os.ReadFile(mdPath)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read %s: %v", mdPath, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("<!-- written to %s -->\n\n%s", mdPath, data)), nil
	}
}

func convertDirectoryHandler(conv documentConverter) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dir, ok := req.Params.Arguments[argInputDir].(string)
		if !ok || dir == "" {
			return mcp.NewToolResultError(argInputDir + " is required"), nil
		}
		out, _ := req.Params.Arguments[argOutputDir].(string)
		recursive, _ := req.Params.Arguments[argRecursive].(bool)

		res, err := conv.ConvertBatch(ctx, converter.BatchRequest{InputDir: dir, OutputRoot: out, Recursive: recursive})
		if err != nil && res.Total() == 0 {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "# Batch conversion of %s\n\n", dir)
		fmt.Fprintf(&sb, "%d converted, %d failed, %d skipped\n\n", res.Converted, res.Failed, res.Skipped)
		for _, item := range res.Items {
			switch {
			case item.Skipped:
				fmt.Fprintf(&sb, "- skipped: %s\n", item.Source)
			case item.Err != nil:
				fmt.Fprintf(&sb, "- failed: %s (%v)\n", item.Source, item.Err)
			default:
				fmt.Fprintf(&sb, "- ok: %s -> %s\n", item.Source, item.Output)
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
