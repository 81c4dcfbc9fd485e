package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RegisterBuiltins installs the stock handlers a fresh node serves with. Real
// deployments register their own handlers on top; last write wins per id.
func RegisterBuiltins(r *Registry) {
	r.Register("trend-analysis", Definition{
		Category: "analytics",
		Handler:  trendAnalysis,
	})
	r.Register("content-generation", Definition{
		Category: "writing",
		Handler:  contentGeneration,
	})
	r.Register("image-generation", Definition{
		Category: "creative",
		Handler:  imageGeneration,
	})
	r.Register("task-automation", Definition{
		Category: "automation",
		Handler:  taskAutomation,
	})
}

func trendAnalysis(_ context.Context, in Context) (json.RawMessage, error) {
	var req struct {
		Topic string `json:"topic"`
	}
	_ = json.Unmarshal(in.Requirements, &req)
	if req.Topic == "" {
		req.Topic = in.OfferingSlug
	}
	return json.Marshal(map[string]any{
		"topic":      req.Topic,
		"direction":  "sideways",
		"confidence": 0.5,
		"sampledAt":  time.Now().UTC().Format(time.RFC3339),
		"signals":    []string{"volume flat", "no breakout"},
	})
}

func contentGeneration(_ context.Context, in Context) (json.RawMessage, error) {
	var req struct {
		Prompt string `json:"prompt"`
		Words  int    `json:"words"`
	}
	_ = json.Unmarshal(in.Requirements, &req)
	if req.Prompt == "" {
		return nil, fmt.Errorf("content-generation: prompt required")
	}
	return json.Marshal(map[string]any{
		"prompt":  req.Prompt,
		"content": fmt.Sprintf("Draft on %q pending editorial review.", req.Prompt),
		"words":   req.Words,
	})
}

func imageGeneration(_ context.Context, in Context) (json.RawMessage, error) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	_ = json.Unmarshal(in.Requirements, &req)
	artifactID := uuid.New().String()
	return json.Marshal(map[string]any{
		"artifactId": artifactID,
		"url":        fmt.Sprintf("artifact://%s", artifactID),
		"prompt":     req.Prompt,
	})
}

func taskAutomation(_ context.Context, in Context) (json.RawMessage, error) {
	var req struct {
		Steps []string `json:"steps"`
	}
	_ = json.Unmarshal(in.Requirements, &req)
	return json.Marshal(map[string]any{
		"jobId":     in.JobID,
		"stepCount": len(req.Steps),
		"completed": req.Steps,
	})
}
