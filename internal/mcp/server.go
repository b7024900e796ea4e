// Package mcp exposes the processing engine as Model Context Protocol
// tools over stdio, mirroring the HTTP surface one to one.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/browser"
	"github.com/scrapeforge/scrapeforge/internal/chrono"
	"github.com/scrapeforge/scrapeforge/internal/export"
	"github.com/scrapeforge/scrapeforge/internal/jobs"
	"github.com/scrapeforge/scrapeforge/internal/pipeline"
	"github.com/scrapeforge/scrapeforge/internal/rules"
	"github.com/scrapeforge/scrapeforge/internal/session"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// Server wraps the engine components and exposes them as MCP tools.
type Server struct {
	registry  *session.Registry
	processor *pipeline.Processor
	tracker   *jobs.Tracker
	exporter  *export.Exporter
	rulebook  *rules.Loader
	fetcher   *browser.Fetcher
	log       *zap.SugaredLogger
	server    *server.MCPServer
}

// NewServer creates the MCP tool server and registers all tools.
func NewServer(
	registry *session.Registry,
	processor *pipeline.Processor,
	tracker *jobs.Tracker,
	exporter *export.Exporter,
	rulebook *rules.Loader,
	fetcher *browser.Fetcher,
	log *zap.SugaredLogger,
) *Server {
	s := &Server{
		registry:  registry,
		processor: processor,
		tracker:   tracker,
		exporter:  exporter,
		rulebook:  rulebook,
		fetcher:   fetcher,
		log:       log.With("component", "mcp"),
	}

	s.server = server.NewMCPServer(
		"scrapeforge",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// Serve runs the stdio transport until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.server)
}

func (s *Server) registerTools() {
	s.server.AddTool(mcp.NewTool("scrape_create_session",
		mcp.WithDescription("Create a new scraping session"),
		mcp.WithString("config", mcp.Description("Session config overrides as a JSON object")),
		mcp.WithString("description", mcp.Description("Free-text session description")),
		mcp.WithString("tags", mcp.Description("Tags as a JSON string array")),
	), s.handleCreateSession)

	s.server.AddTool(mcp.NewTool("scrape_get_session",
		mcp.WithDescription("Fetch a session by id"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), s.handleGetSession)

	s.server.AddTool(mcp.NewTool("scrape_update_config",
		mcp.WithDescription("Merge a partial config into a session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("config", mcp.Required(), mcp.Description("Partial session config as a JSON object")),
	), s.handleUpdateConfig)

	s.server.AddTool(mcp.NewTool("scrape_update_progress",
		mcp.WithDescription("Merge partial progress counters into a session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("progress", mcp.Required(), mcp.Description("Partial progress tracker as a JSON object")),
	), s.handleUpdateProgress)

	s.server.AddTool(mcp.NewTool("scrape_set_status",
		mcp.WithDescription("Transition a session's lifecycle status"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("status", mcp.Required(), mcp.Description("Target status (configuring, running, paused, completed, failed)")),
	), s.handleSetStatus)

	s.server.AddTool(mcp.NewTool("scrape_add_data",
		mcp.WithDescription("Append raw extracted records to a session's buffer"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("records", mcp.Required(), mcp.Description("Raw records as a JSON array")),
	), s.handleAddData)

	s.server.AddTool(mcp.NewTool("scrape_process_data",
		mcp.WithDescription("Clean and quality-score a session's raw records"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("cleaning_rules", mcp.Description("Cleaning rules as a JSON array")),
		mcp.WithString("validation_rules", mcp.Description("Validation rules as a JSON array")),
		mcp.WithString("cleaning_set", mcp.Description("Named cleaning rule set from the rulebook")),
		mcp.WithString("validation_set", mcp.Description("Named validation rule set from the rulebook")),
		mcp.WithBoolean("store", mcp.Description("Store the processed batch on the session")),
	), s.handleProcessData)

	s.server.AddTool(mcp.NewTool("scrape_aggregate_data",
		mcp.WithDescription("Group and reduce processed records"),
		mcp.WithString("records", mcp.Description("Processed records as a JSON array; defaults to the session's processed data")),
		mcp.WithString("rules", mcp.Description("Aggregation rules as a JSON array")),
		mcp.WithString("aggregation_set", mcp.Description("Named aggregation rule set from the rulebook")),
		mcp.WithString("session_id", mcp.Description("Session whose processed data to aggregate")),
	), s.handleAggregateData)

	s.server.AddTool(mcp.NewTool("scrape_data_statistics",
		mcp.WithDescription("Compute distributional statistics over processed records"),
		mcp.WithString("records", mcp.Description("Processed records as a JSON array")),
		mcp.WithString("session_id", mcp.Description("Session whose processed data to summarize")),
	), s.handleStatistics)

	s.server.AddTool(mcp.NewTool("scrape_infer_schema",
		mcp.WithDescription("Infer a field schema from processed records"),
		mcp.WithString("records", mcp.Description("Processed records as a JSON array")),
		mcp.WithString("session_id", mcp.Description("Session whose processed data to infer from")),
	), s.handleInferSchema)

	s.server.AddTool(mcp.NewTool("scrape_export_data",
		mcp.WithDescription("Export a session's data asynchronously; poll the returned job"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("format", mcp.Required(), mcp.Description("Export format: json, csv, or ndjson")),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Output file name")),
		mcp.WithString("path", mcp.Description("Output directory; defaults to the configured export dir")),
		mcp.WithString("source", mcp.Description("Which session data to export: processed (default) or aggregated")),
		mcp.WithString("metadata", mcp.Description("Extra metadata as a JSON object")),
	), s.handleExportData)

	s.server.AddTool(mcp.NewTool("scrape_job_status",
		mcp.WithDescription("Poll a processing or export job"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id")),
	), s.handleJobStatus)

	s.server.AddTool(mcp.NewTool("scrape_page",
		mcp.WithDescription("Fetch one page and feed the extracted record into a session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
		mcp.WithString("selectors", mcp.Description("Field to CSS selector map as a JSON object")),
	), s.handleScrapePage)

	s.server.AddTool(mcp.NewTool("scrape_datetime",
		mcp.WithDescription("Describe the current date and time in a timezone"),
		mcp.WithString("tz", mcp.Description("IANA timezone, defaults to UTC")),
		mcp.WithString("layout", mcp.Description("Go reference date layout")),
	), s.handleDatetime)
}

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var config *models.SessionConfig
	if raw := request.GetString("config", ""); raw != "" {
		config = &models.SessionConfig{}
		if err := json.Unmarshal([]byte(raw), config); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid config: %v", err)), nil
		}
	}
	var tags []string
	if raw := request.GetString("tags", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid tags: %v", err)), nil
		}
	}

	sess, err := s.registry.Create(config, request.GetString("description", ""), tags)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sess)
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.registry.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sess)
}

func (s *Server) handleUpdateConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := request.RequireString("config")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var partial models.SessionConfig
	if err := json.Unmarshal([]byte(raw), &partial); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid config: %v", err)), nil
	}
	if err := s.registry.UpdateConfig(id, partial); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("config updated"), nil
}

func (s *Server) handleUpdateProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := request.RequireString("progress")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var partial models.ProgressTracker
	if err := json.Unmarshal([]byte(raw), &partial); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid progress: %v", err)), nil
	}
	if err := s.registry.UpdateProgress(id, partial); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("progress updated"), nil
}

func (s *Server) handleSetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.registry.SetStatus(id, models.SessionStatus(status)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("status set to %s", status)), nil
}

func (s *Server) handleAddData(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := request.RequireString("records")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var records []models.RawRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid records: %v", err)), nil
	}
	if err := s.registry.AddExtractedData(id, records); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added %d records", len(records))), nil
}

func (s *Server) handleProcessData(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.registry.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var cleaning []models.CleaningRule
	if raw := request.GetString("cleaning_rules", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cleaning); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid cleaning rules: %v", err)), nil
		}
	} else if set := request.GetString("cleaning_set", ""); set != "" {
		cleaning = s.rulebook.CleaningSet(set)
	}

	var validation []models.ValidationRule
	if raw := request.GetString("validation_rules", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &validation); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid validation rules: %v", err)), nil
		}
	} else if set := request.GetString("validation_set", ""); set != "" {
		validation = s.rulebook.ValidationSet(set)
	}

	records, job, err := s.processor.ProcessData(id, sess.Data.Raw, cleaning, validation)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if request.GetBool("store", false) {
		if err := s.registry.StoreProcessed(id, records); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return jsonResult(map[string]any{"records": records, "job": job})
}

func (s *Server) handleAggregateData(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, errResult := s.recordsArg(request)
	if errResult != nil {
		return errResult, nil
	}

	var aggRules []models.AggregationRule
	if raw := request.GetString("rules", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &aggRules); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid rules: %v", err)), nil
		}
	} else if set := request.GetString("aggregation_set", ""); set != "" {
		aggRules = s.rulebook.AggregationSet(set)
	}

	return jsonResult(pipeline.Aggregate(records, aggRules))
}

func (s *Server) handleStatistics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, errResult := s.recordsArg(request)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(pipeline.GenerateStatistics(records))
}

func (s *Server) handleInferSchema(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, errResult := s.recordsArg(request)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(pipeline.InferSchema(records))
}

// recordsArg resolves the shared records/session_id argument pair.
func (s *Server) recordsArg(request mcp.CallToolRequest) ([]models.ProcessedRecord, *mcp.CallToolResult) {
	if raw := request.GetString("records", ""); raw != "" {
		var records []models.ProcessedRecord
		if err := json.Unmarshal([]byte(raw), &records); err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("invalid records: %v", err))
		}
		return records, nil
	}
	if id := request.GetString("session_id", ""); id != "" {
		sess, err := s.registry.Get(id)
		if err != nil {
			return nil, mcp.NewToolResultError(err.Error())
		}
		return sess.Data.Processed, nil
	}
	return nil, nil
}

func (s *Server) handleExportData(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format, err := request.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename, err := request.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess, err := s.registry.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var metadata map[string]any
	if raw := request.GetString("metadata", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid metadata: %v", err)), nil
		}
	}

	var records []map[string]any
	switch request.GetString("source", "processed") {
	case "aggregated":
		for _, row := range sess.Data.Aggregated {
			records = append(records, row.Fields)
		}
	default:
		for _, rec := range sess.Data.Processed {
			records = append(records, rec.Fields)
		}
	}

	job := s.exporter.Submit(export.Request{
		SessionID: id,
		Records:   records,
		Format:    format,
		Filename:  filename,
		Path:      request.GetString("path", ""),
		Metadata:  metadata,
	})
	return jsonResult(job)
}

func (s *Server) handleJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := s.tracker.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(job)
}

func (s *Server) handleScrapePage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.registry.Get(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var selectors map[string]string
	if raw := request.GetString("selectors", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &selectors); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid selectors: %v", err)), nil
		}
	}

	record, err := s.fetcher.Fetch(ctx, url, selectors)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.registry.AddExtractedData(id, []models.RawRecord{*record}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(record)
}

func (s *Server) handleDatetime(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	desc, err := chrono.Describe(request.GetString("tz", ""), request.GetString("layout", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(desc)
}

// jsonResult marshals a value into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
