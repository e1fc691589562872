package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/webshot/browser"
	"github.com/use-agent/webshot/capture"
	"github.com/use-agent/webshot/config"
	"github.com/use-agent/webshot/models"
)

// capturer is the part of *capture.Capturer the tool needs.
type capturer interface {
	Capture(ctx context.Context, req *models.CaptureRequest) *models.CaptureResult
}

func main() {
	cfg := config.Load()

	// stdout carries the MCP protocol; logs go to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cp := capture.New(browser.NewRodLauncher(cfg.Browser), cfg.Capture)

	s := server.NewMCPServer(
		"webshot",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	s.AddTool(screenshotTool(), handleScreenshot(cp))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func screenshotTool() mcp.Tool {
	return mcp.NewTool("screenshot",
		mcp.WithDescription("Capture a screenshot of a web page with a headless browser and save it as PNG. Returns the saved file path and page details."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to capture. https:// is assumed when no scheme is given."),
		),
		mcp.WithBoolean("full_page",
			mcp.Description("Capture the whole scrollable page (default: true). false captures only the viewport."),
		),
		mcp.WithString("window_size",
			mcp.Description("Browser window as WIDTH,HEIGHT (default: 1920,1080)"),
		),
		mcp.WithString("output_folder",
			mcp.Description("Directory to save screenshots under, one subfolder per day (default: server setting)"),
		),
		mcp.WithString("file_prefix",
			mcp.Description("File name prefix (default: 'screenshot')"),
		),
		mcp.WithNumber("wait",
			mcp.Description("Seconds to wait after the page is ready, for animations and lazy content (default: 3)"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Page load timeout in seconds (default: 30, max: 120)"),
		),
		mcp.WithBoolean("headless",
			mcp.Description("Run the browser without a window (default: server setting)"),
		),
		mcp.WithBoolean("stealth",
			mcp.Description("Hide common headless-browser fingerprints"),
		),
		mcp.WithBoolean("block_ads",
			mcp.Description("Block well-known ad and tracking domains"),
		),
	)
}

func handleScreenshot(cp capturer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		req := &models.CaptureRequest{
			URL:          url,
			OutputFolder: request.GetString("output_folder", ""),
			FilePrefix:   request.GetString("file_prefix", ""),
			Timeout:      request.GetInt("timeout", 0),
			Stealth:      request.GetBool("stealth", false),
			BlockAds:     request.GetBool("block_ads", false),
		}
		if ws := request.GetString("window_size", ""); ws != "" {
			parsed, err := models.ParseWindowSize(ws)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("[%s] %v", models.ErrCodeInvalidInput, err)), nil
			}
			req.WindowSize = parsed
		}
		args := request.GetArguments()
		if _, ok := args["full_page"]; ok {
			fp := request.GetBool("full_page", true)
			req.FullPage = &fp
		}
		if _, ok := args["wait"]; ok {
			w := request.GetInt("wait", 0)
			req.Wait = &w
		}
		if _, ok := args["headless"]; ok {
			h := request.GetBool("headless", true)
			req.Headless = &h
		}

		res := cp.Capture(ctx, req)
		if !res.Success {
			errMsg := "screenshot failed"
			if res.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", res.Error.Code, res.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(formatResult(res)), nil
	}
}

// formatResult renders a short header followed by the full JSON result.
func formatResult(res *models.CaptureResult) string {
	text := fmt.Sprintf("Saved: %s\nTitle: %s\nURL: %s\n",
		res.File.Path, res.Page.Title, res.Page.FinalURL)
	if res.Metadata.LoadStatus != "" && res.Metadata.LoadStatus != models.LoadComplete {
		text += fmt.Sprintf("Warning: page not fully loaded (%s)\n", res.Metadata.LoadStatus)
	}

	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return text
	}
	return text + "\n" + string(body)
}
