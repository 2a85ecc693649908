package session

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/gameconfig"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/model"
)

// HistoryLimit is how many prior sessions are fed into configuration
// generation.
const HistoryLimit = 5

// SummaryLister returns a child's most recent archived sessions.
type SummaryLister interface {
	ListSummaries(ctx context.Context, childID string, limit int) ([]model.SessionSummary, error)
}

// Planner picks the configuration for a child's next session.
type Planner struct {
	generator gameconfig.Generator
	history   SummaryLister
	logger    zerolog.Logger
}

// NewPlanner creates a planner. history may be nil.
func NewPlanner(generator gameconfig.Generator, history SummaryLister, logger zerolog.Logger) *Planner {
	if generator == nil {
		generator = gameconfig.StaticGenerator{}
	}
	return &Planner{
		generator: generator,
		history:   history,
		logger:    logger.With().Str("component", "planner").Logger(),
	}
}

// Plan returns a configuration for childID. It never fails: generation errors
// yield the fallback configuration.
func (p *Planner) Plan(ctx context.Context, childID string, profile json.RawMessage) json.RawMessage {
	req := gameconfig.Request{Profile: profile}

	if p.history != nil {
		summaries, err := p.history.ListSummaries(ctx, childID, HistoryLimit)
		if err != nil {
			p.logger.Warn().Err(err).Str("child_id", childID).Msg("Failed to load session history")
		}
		for _, s := range summaries {
			if len(s.Summary) > 0 {
				req.PriorSummaries = append(req.PriorSummaries, s.Summary)
			}
		}
	}

	cfg, err := p.generator.Generate(ctx, req)
	if err != nil {
		p.logger.Warn().Err(err).Str("child_id", childID).Msg("Config generation failed, using fallback")
		return gameconfig.Fallback()
	}
	return cfg
}
