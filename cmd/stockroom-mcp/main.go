package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// errorDetail mirrors the Stockroom API error model.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// itemFailure mirrors one failed item in a run report.
type itemFailure struct {
	Index      int    `json:"index"`
	ExternalID string `json:"external_id"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// runReport mirrors the run report in Stockroom API responses.
type runReport struct {
	Seen     int           `json:"seen"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Failures []itemFailure `json:"failures"`
}

// runSnapshot mirrors the run snapshot in Stockroom API responses.
type runSnapshot struct {
	ID        string    `json:"id"`
	BrandSlug string    `json:"brand_slug"`
	BrandName string    `json:"brand_name"`
	SourceURL string    `json:"source_url"`
	DryRun    bool      `json:"dry_run"`
	State     string    `json:"state"`
	Error     string    `json:"error"`
	Report    runReport `json:"report"`
}

// runResponse mirrors POST /api/v1/ingest and GET /api/v1/runs/:id responses.
type runResponse struct {
	Success bool         `json:"success"`
	Run     *runSnapshot `json:"run"`
	Error   *errorDetail `json:"error"`
}

// brandsResponse mirrors the GET /api/v1/brands response.
type brandsResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Brands  []struct {
		Slug    string `json:"slug"`
		Name    string `json:"name"`
		Adapter string `json:"adapter"`
	} `json:"brands"`
}

// productResponse mirrors the GET /api/v1/products/:brand/:external_id response.
type productResponse struct {
	Success bool            `json:"success"`
	Product json.RawMessage `json:"product"`
	Error   *errorDetail    `json:"error"`
}

func main() {
	apiURL := os.Getenv("STOCKROOM_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("STOCKROOM_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "STOCKROOM_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"stockroom",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	ingestTool := mcp.NewTool("ingest_catalog",
		mcp.WithDescription("Ingest a brand's product catalog from a URL into the store. Returns the run report with created/updated/skipped/failed counts. Set dry_run to preview decisions without writing."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The catalog or category page URL to ingest"),
		),
		mcp.WithString("brand_slug",
			mcp.Required(),
			mcp.Description("Registered brand slug that selects the adapter (see list_brands)"),
		),
		mcp.WithString("brand_name",
			mcp.Description("Informational brand name recorded on the run"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Classify every item without writing to the store (default: false)"),
		),
	)
	s.AddTool(ingestTool, handleIngestCatalog(apiURL, apiKey))

	listBrandsTool := mcp.NewTool("list_brands",
		mcp.WithDescription("List the registered brand adapters with their slugs. A slug is required to ingest a catalog."),
	)
	s.AddTool(listBrandsTool, handleListBrands(apiURL, apiKey))

	getRunTool := mcp.NewTool("get_run",
		mcp.WithDescription("Get the current snapshot of an ingestion run: state and live report."),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("The run ID returned by ingest_catalog"),
		),
	)
	s.AddTool(getRunTool, handleGetRun(apiURL, apiKey))

	getProductTool := mcp.NewTool("get_product",
		mcp.WithDescription("Fetch one stored product by brand slug and external ID."),
		mcp.WithString("brand_slug",
			mcp.Required(),
			mcp.Description("The brand slug the product was ingested under"),
		),
		mcp.WithString("external_id",
			mcp.Required(),
			mcp.Description("The retailer's product code (SKU/handle)"),
		),
	)
	s.AddTool(getProductTool, handleGetProduct(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the Stockroom API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// apiGet sends a GET request to the Stockroom API and returns the response body.
func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollRunCompletion polls a run endpoint until the run reaches a
// terminal state or the context is cancelled.
func pollRunCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, runID string) (*runSnapshot, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiGet(ctx, client, apiURL, apiKey, "/api/v1/runs/"+runID)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			var resp runResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, fmt.Errorf("parse poll response: %w", err)
			}
			if resp.Run == nil {
				if resp.Error != nil {
					return nil, fmt.Errorf("[%s] %s", resp.Error.Code, resp.Error.Message)
				}
				return nil, fmt.Errorf("poll response carried no run")
			}

			if resp.Run.State == "completed" || resp.Run.State == "failed" {
				return resp.Run, nil
			}
		}
	}
}

func handleIngestCatalog(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		brandSlug, err := request.RequireString("brand_slug")
		if err != nil {
			return mcp.NewToolResultError("brand_slug is required"), nil
		}

		payload := map[string]interface{}{
			"url":        url,
			"brand_slug": brandSlug,
			"dry_run":    request.GetBool("dry_run", false),
		}
		if name := request.GetString("brand_name", ""); name != "" {
			payload["brand_name"] = name
		}

		// Submit asynchronously, then poll: catalogs can outlive any
		// single HTTP timeout.
		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/ingest", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ingest request failed: %v", err)), nil
		}

		var resp runResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse ingest response: %v", err)), nil
		}
		if !resp.Success || resp.Run == nil {
			errMsg := "ingest submission failed"
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		final, err := pollRunCompletion(ctx, client, apiURL, apiKey, resp.Run.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling run failed: %v", err)), nil
		}

		return mcp.NewToolResultText(formatRun(final)), nil
	}
}

func handleListBrands(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		respBody, err := apiGet(ctx, client, apiURL, apiKey, "/api/v1/brands")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("brands request failed: %v", err)), nil
		}

		var resp brandsResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse brands response: %v", err)), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%d registered brands:\n\n", resp.Count))
		for _, b := range resp.Brands {
			sb.WriteString(fmt.Sprintf("%s — %s (adapter: %s)\n", b.Slug, b.Name, b.Adapter))
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleGetRun(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := request.RequireString("run_id")
		if err != nil {
			return mcp.NewToolResultError("run_id is required"), nil
		}

		respBody, err := apiGet(ctx, client, apiURL, apiKey, "/api/v1/runs/"+runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run request failed: %v", err)), nil
		}

		var resp runResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse run response: %v", err)), nil
		}
		if resp.Run == nil {
			errMsg := "run not found"
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(formatRun(resp.Run)), nil
	}
}

func handleGetProduct(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		brandSlug, err := request.RequireString("brand_slug")
		if err != nil {
			return mcp.NewToolResultError("brand_slug is required"), nil
		}
		externalID, err := request.RequireString("external_id")
		if err != nil {
			return mcp.NewToolResultError("external_id is required"), nil
		}

		path := "/api/v1/products/" + brandSlug + "/" + externalID
		respBody, err := apiGet(ctx, client, apiURL, apiKey, path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("product request failed: %v", err)), nil
		}

		var resp productResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse product response: %v", err)), nil
		}
		if !resp.Success {
			errMsg := "product lookup failed"
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, resp.Product, "", "  "); err != nil {
			pretty.Write(resp.Product)
		}
		return mcp.NewToolResultText(pretty.String()), nil
	}
}

// formatRun renders a run snapshot as readable text.
func formatRun(run *runSnapshot) string {
	var sb strings.Builder

	mode := ""
	if run.DryRun {
		mode = " (dry run)"
	}
	sb.WriteString(fmt.Sprintf("Run %s: %s%s\n", run.ID, run.State, mode))
	if run.BrandName != "" {
		sb.WriteString(fmt.Sprintf("Brand: %s (%s)\n", run.BrandSlug, run.BrandName))
	} else {
		sb.WriteString(fmt.Sprintf("Brand: %s\n", run.BrandSlug))
	}
	sb.WriteString(fmt.Sprintf("Source: %s\n", run.SourceURL))
	if run.Error != "" {
		sb.WriteString(fmt.Sprintf("Error: %s\n", run.Error))
	}

	r := run.Report
	sb.WriteString(fmt.Sprintf("\nSeen %d: created %d, updated %d, skipped %d, failed %d\n",
		r.Seen, r.Created, r.Updated, r.Skipped, r.Failed))

	if len(r.Failures) > 0 {
		sb.WriteString("\nFailures:\n")
		for _, f := range r.Failures {
			id := f.ExternalID
			if id == "" {
				id = "?"
			}
			sb.WriteString(fmt.Sprintf("  [%d] %s: %s: %s\n", f.Index, id, f.Kind, f.Message))
		}
	}

	return sb.String()
}
