package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vision-stage-tracker/internal/domain"
	"github.com/vision-stage-tracker/internal/service"
)

// Tool names
const (
	ToolResolveStage             = "resolve_stage"
	ToolStageInterventionSummary = "stage_intervention_summary"
	ToolListStages               = "list_stages"
	ToolStageTrends              = "stage_trends"
)

// ToolNames lists the registered tools
func ToolNames() []string {
	return []string{ToolResolveStage, ToolStageInterventionSummary, ToolListStages, ToolStageTrends}
}

// ResolveStageParams defines parameters for resolve_stage tool
type ResolveStageParams struct {
	Date string `json:"date" jsonschema:"examination date formatted as YYYY-MM-DD"`
}

// ResolveStageResult defines the result structure for resolve_stage tool
type ResolveStageResult struct {
	Date  string          `json:"date"`
	Stage domain.StageRef `json:"stage"`
}

// SummaryParams defines parameters for stage_intervention_summary tool
type SummaryParams struct{}

// SummaryResult defines the result structure for stage_intervention_summary tool
type SummaryResult struct {
	Rows        []domain.StageInterventionSummary `json:"rows"`
	RecordCount int                               `json:"record_count"`
	RefreshedAt string                            `json:"refreshed_at"`
}

// ListStagesParams defines parameters for list_stages tool
type ListStagesParams struct{}

// ListStagesResult defines the result structure for list_stages tool
type ListStagesResult struct {
	Stages []domain.Stage `json:"stages"`
}

// StageTrendsParams defines parameters for stage_trends tool
type StageTrendsParams struct {
	Stages []string `json:"stages,omitempty" jsonschema:"stage names to include; all stages when empty"`
	Last   int      `json:"last,omitempty" jsonschema:"keep only the most recent points, clamped to 3..80; 0 keeps all"`
}

// StageTrendsResult defines the result structure for stage_trends tool
type StageTrendsResult struct {
	Points []domain.TrendPoint `json:"points"`
}

// handleResolveStage handles the resolve_stage tool invocation
func (s *Server) handleResolveStage(ctx context.Context, req *mcp.CallToolRequest, params ResolveStageParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolResolveStage).Info("Tool invoked")

	if params.Date == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("date is required")), nil, nil
	}
	date, err := domain.ParseDate(params.Date)
	if err != nil {
		return s.createErrorResult("Invalid parameter", err), nil, nil
	}

	ref, err := s.tracker.ResolveDate(ctx, date)
	if err != nil {
		return s.createErrorResult("Failed to resolve stage", err), nil, nil
	}

	result := ResolveStageResult{Date: domain.FormatDate(date), Stage: ref}
	if !ref.Matched {
		return textResult("%s matches no enabled stage", result.Date), result, nil
	}
	return textResult("%s falls in stage %q (%s)", result.Date, ref.Name, ref.ID), result, nil
}

// handleStageInterventionSummary handles the stage_intervention_summary tool invocation
func (s *Server) handleStageInterventionSummary(ctx context.Context, req *mcp.CallToolRequest, params SummaryParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolStageInterventionSummary).Info("Tool invoked")

	snap, err := s.tracker.Refresh(ctx)
	if err != nil {
		return s.createErrorResult("Failed to refresh records", err), nil, nil
	}

	result := SummaryResult{
		Rows:        snap.Summary,
		RecordCount: len(snap.Records),
		RefreshedAt: snap.RefreshedAt.Format(time.RFC3339),
	}
	return textResult("%d summary rows from %d records", len(result.Rows), result.RecordCount), result, nil
}

// handleListStages handles the list_stages tool invocation
func (s *Server) handleListStages(ctx context.Context, req *mcp.CallToolRequest, params ListStagesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolListStages).Info("Tool invoked")

	stages, err := s.tracker.Stages().ListStages(ctx)
	if err != nil {
		return s.createErrorResult("Failed to list stages", err), nil, nil
	}

	enabled := 0
	for _, st := range stages {
		if st.Enabled {
			enabled++
		}
	}
	return textResult("%d stages, %d enabled", len(stages), enabled), ListStagesResult{Stages: stages}, nil
}

// handleStageTrends handles the stage_trends tool invocation
func (s *Server) handleStageTrends(ctx context.Context, req *mcp.CallToolRequest, params StageTrendsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolStageTrends).Info("Tool invoked")

	if params.Last < 0 {
		return s.createErrorResult("Invalid parameter", fmt.Errorf("last must not be negative")), nil, nil
	}

	points, err := s.tracker.Trends(ctx, service.TrendQuery{Stages: params.Stages, Last: params.Last})
	if err != nil {
		return s.createErrorResult("Failed to build trends", err), nil, nil
	}
	return textResult("%d trend points", len(points)), StageTrendsResult{Points: points}, nil
}
