package search

import (
	"github.com/hyperjump/snapfind/internal/config"
	"github.com/hyperjump/snapfind/internal/models"
	"github.com/hyperjump/snapfind/internal/ranking"
)

// rankOptions resolves the request's threshold and limit against the configuration.
// A request threshold overrides the configured one; the limit falls back to
// DefaultLimit and is capped at MaxLimit.
func rankOptions(req *models.SearchRequest, cfg *config.SearchConfig) ranking.Options {
	opts := ranking.Options{Threshold: ranking.DefaultThreshold}
	if cfg != nil {
		opts.Threshold = cfg.ThresholdOrDefault()
		opts.Limit = cfg.DefaultLimit
	}
	if req.Threshold != nil {
		opts.Threshold = *req.Threshold
	}
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if cfg != nil && cfg.MaxLimit > 0 && (opts.Limit == 0 || opts.Limit > cfg.MaxLimit) {
		opts.Limit = cfg.MaxLimit
	}
	return opts
}
