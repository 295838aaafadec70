// Package mcpserver exposes a live session's buffers as MCP tools so other
// programs can read and export the same series the TUI shows.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jwulff/sensorwatch/internal/export"
	"github.com/jwulff/sensorwatch/internal/sensor"
	"github.com/jwulff/sensorwatch/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wires the tools to a started session.
type Server struct {
	session  *session.Session
	exporter *export.Exporter
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// ChannelInfo is one entry of list_channels.
type ChannelInfo struct {
	Channel   string     `json:"channel"`
	Sheet     string     `json:"sheet"`
	Readings  int        `json:"readings"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// ExportResult is the export tool's reply.
type ExportResult struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
	Range string `json:"range"`
}

// New registers list_channels, current_series and export. exporter may be
// nil, in which case export returns a tool error.
func New(sess *session.Session, exporter *export.Exporter, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		session:  sess,
		exporter: exporter,
		logger:   logger,
		mcp:      server.NewMCPServer("sensorwatch", version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("list_channels",
		mcp.WithDescription("List the subscribed sensor channels with their buffered reading count and last update time."),
	), s.listChannels)

	s.mcp.AddTool(mcp.NewTool("current_series",
		mcp.WithDescription("Return a channel's buffered readings (at most 50, oldest first), optionally restricted to a date range. The range applies only when both dates are given."),
		mcp.WithString("channel", mcp.Required(), mcp.Description("Channel id, e.g. ph")),
		mcp.WithString("start", mcp.Description("First day to include, YYYY-MM-DD")),
		mcp.WithString("end", mcp.Description("Last day to include, YYYY-MM-DD")),
	), s.currentSeries)

	s.mcp.AddTool(mcp.NewTool("export",
		mcp.WithDescription("Write every channel's buffered readings to the spreadsheet, one sheet per channel, and return the file path."),
		mcp.WithString("start", mcp.Description("First day to include, YYYY-MM-DD")),
		mcp.WithString("end", mcp.Description("Last day to include, YYYY-MM-DD")),
	), s.export)

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over in and out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

func (s *Server) listChannels(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var out []ChannelInfo
	for _, ch := range s.session.Channels() {
		info := ChannelInfo{
			Channel:  string(ch),
			Sheet:    ch.SheetName(),
			Readings: len(s.session.Series(ch, sensor.DateRange{})),
		}
		if at := s.session.UpdatedAt(ch); !at.IsZero() {
			info.UpdatedAt = &at
		}
		out = append(out, info)
	}
	return jsonResult(out)
}

func (s *Server) currentSeries(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ch := sensor.Channel(req.GetString("channel", ""))
	if !s.session.HasChannel(ch) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown channel %q", ch)), nil
	}
	rng, err := s.dateRange(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	series := s.session.Series(ch, rng)
	if series == nil {
		series = []sensor.Reading{}
	}
	return jsonResult(series)
}

func (s *Server) export(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.exporter == nil {
		return mcp.NewToolResultError("export is not configured"), nil
	}
	rng, err := s.dateRange(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := s.exporter.Export(rng)
	if err != nil {
		s.logger.Error("export failed", "err", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := ExportResult{Path: path, Range: rng.String()}
	if fi, err := os.Stat(path); err == nil {
		res.Bytes = fi.Size()
	}
	s.logger.Info("exported", "path", path, "bytes", res.Bytes)
	return jsonResult(res)
}

func (s *Server) dateRange(req mcp.CallToolRequest) (sensor.DateRange, error) {
	return sensor.ParseDateRange(req.GetString("start", ""), req.GetString("end", ""), s.session.Location())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
