package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vbonduro/mealsnap/internal/nutrition"
	"github.com/vbonduro/mealsnap/internal/service"
	"github.com/vbonduro/mealsnap/internal/vision"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_today_meals",
		Description: "List the meals recorded today with calorie and PFC totals",
	}, s.handleListToday)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_meal_history",
		Description: "List recorded meals grouped by day, most recent day first, with daily totals",
	}, s.handleListHistory)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_meal",
		Description: "Get a single meal record by ID",
	}, s.handleGetMeal)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "add_meal",
		Description: "Record a meal from a manually entered nutrition estimate",
	}, s.handleAddMeal)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "delete_meal",
		Description: "Delete a meal record by ID",
	}, s.handleDeleteMeal)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "pfc_ratio",
		Description: "Compute the calorie share of carbs, protein and fat (C:P:F) from gram amounts",
	}, s.handlePFCRatio)
}

type emptyInput struct{}

type historyInput struct {
	Days int `json:"days,omitempty" jsonschema:"number of most recent days with meals to return; all days when omitted"`
}

type mealIDInput struct {
	ID string `json:"id" jsonschema:"meal record ID"`
}

type addMealInput struct {
	Name       string   `json:"name" jsonschema:"dish name"`
	Calories   float64  `json:"calories" jsonschema:"energy in kcal"`
	Protein    float64  `json:"protein" jsonschema:"protein in grams"`
	Fat        float64  `json:"fat" jsonschema:"fat in grams"`
	Carbs      float64  `json:"carbs" jsonschema:"carbohydrates in grams"`
	Confidence *float64 `json:"confidence,omitempty" jsonschema:"estimate confidence between 0 and 1; defaults to 1 for manual entries"`
	EatenAt    string   `json:"eaten_at,omitempty" jsonschema:"when the meal was eaten (RFC 3339); defaults to now"`
}

type pfcInput struct {
	Carbs   float64 `json:"carbs" jsonschema:"carbohydrates in grams"`
	Protein float64 `json:"protein" jsonschema:"protein in grams"`
	Fat     float64 `json:"fat" jsonschema:"fat in grams"`
}

type pfcOutput struct {
	Ratio   string `json:"ratio"`
	Carbs   int    `json:"carbs_pct"`
	Protein int    `json:"protein_pct"`
	Fat     int    `json:"fat_pct"`
}

type simpleOutput struct {
	Message string `json:"message"`
}

func (s *Server) handleListToday(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	summary, err := s.meals.TodaySummary(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, summary, nil
}

func (s *Server) handleListHistory(ctx context.Context, req *mcp.CallToolRequest, input historyInput) (*mcp.CallToolResult, any, error) {
	if input.Days < 0 {
		return nil, nil, fmt.Errorf("days must not be negative")
	}
	history, err := s.meals.History(ctx, input.Days)
	if err != nil {
		return nil, nil, err
	}
	if len(history) == 0 {
		return nil, map[string]any{"message": "No meals recorded."}, nil
	}
	return nil, map[string]any{"days": history}, nil
}

func (s *Server) handleGetMeal(ctx context.Context, req *mcp.CallToolRequest, input mealIDInput) (*mcp.CallToolResult, any, error) {
	rec, err := s.meals.GetMeal(ctx, input.ID)
	if errors.Is(err, service.ErrMealNotFound) {
		return nil, nil, fmt.Errorf("meal not found: %s", input.ID)
	}
	if err != nil {
		return nil, nil, err
	}
	return nil, rec, nil
}

func (s *Server) handleAddMeal(ctx context.Context, req *mcp.CallToolRequest, input addMealInput) (*mcp.CallToolResult, any, error) {
	est := vision.Estimate{
		Name:       input.Name,
		Calories:   input.Calories,
		Protein:    input.Protein,
		Fat:        input.Fat,
		Carbs:      input.Carbs,
		Confidence: 1,
	}
	if input.Confidence != nil {
		est.Confidence = *input.Confidence
	}

	in := service.SaveMealInput{Estimate: est}
	if input.EatenAt != "" {
		t, err := time.Parse(time.RFC3339, input.EatenAt)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid eaten_at: %w", err)
		}
		in.CapturedAt = t
	}

	rec, err := s.meals.SaveMeal(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return nil, rec, nil
}

func (s *Server) handleDeleteMeal(ctx context.Context, req *mcp.CallToolRequest, input mealIDInput) (*mcp.CallToolResult, simpleOutput, error) {
	if input.ID == "" {
		return nil, simpleOutput{}, fmt.Errorf("id is required")
	}
	if err := s.meals.DeleteMeal(ctx, input.ID); err != nil {
		return nil, simpleOutput{}, err
	}
	return nil, simpleOutput{Message: fmt.Sprintf("Deleted meal: %s", input.ID)}, nil
}

func (s *Server) handlePFCRatio(ctx context.Context, req *mcp.CallToolRequest, input pfcInput) (*mcp.CallToolResult, pfcOutput, error) {
	if input.Carbs < 0 || input.Protein < 0 || input.Fat < 0 {
		return nil, pfcOutput{}, fmt.Errorf("gram amounts must not be negative")
	}
	r := nutrition.PFCRatio(input.Carbs, input.Protein, input.Fat)
	return nil, pfcOutput{Ratio: r.String(), Carbs: r.Carbs, Protein: r.Protein, Fat: r.Fat}, nil
}
