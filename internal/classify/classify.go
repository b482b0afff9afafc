// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify assigns each question a handling category. Pattern
// rules answer most questions instantly; ambiguous ones fall back to a
// chat model. Classification never fails: a model error yields the rule
// result.
package classify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/cache"
	"github.com/pdiddy/research-assistant/internal/usage"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// maxCacheKey is the number of normalized characters used as a cache key.
const maxCacheKey = 200

// Classifier combines rule and model classification with a result cache.
type Classifier struct {
	threshold float64
	model     *ModelClassifier
	cache     *cache.FIFO[string, types.ClassificationResult]
	usage     *usage.Recorder
	log       *zap.Logger
}

// New returns a Classifier. A nil model disables the fallback; low
// confidence rule results are then returned as is.
func New(cfg types.ClassifierConfig, model *ModelClassifier, rec *usage.Recorder, log *zap.Logger) *Classifier {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.85
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.ModelFallback {
		model = nil
	}
	return &Classifier{
		threshold: cfg.ConfidenceThreshold,
		model:     model,
		cache:     cache.NewFIFO[string, types.ClassificationResult](cfg.CacheSize),
		usage:     rec,
		log:       log,
	}
}

// cacheKey normalizes text for the classification cache.
func cacheKey(text string) string {
	k := strings.ToLower(strings.TrimSpace(text))
	if r := []rune(k); len(r) > maxCacheKey {
		k = string(r[:maxCacheKey])
	}
	return k
}

// Classify returns the category of text.
func (c *Classifier) Classify(ctx context.Context, text string, user types.UserContext) types.ClassificationResult {
	key := cacheKey(text)
	if res, ok := c.cache.Get(key); ok {
		c.log.Debug("classification cache hit", zap.String("category", string(res.Category)))
		return res
	}

	rule := RuleClassify(text)
	if rule.Confidence >= c.threshold {
		c.cache.Put(key, rule)
		return rule
	}
	if c.model == nil {
		return rule
	}

	c.log.Debug("low rule confidence, asking model", zap.Float64("confidence", rule.Confidence))
	ans, err := c.model.Classify(ctx, text)
	c.record(ctx, user, ans, text)
	if err != nil {
		c.log.Warn("model classification failed, using rule result",
			zap.Error(err),
			zap.String("category", string(rule.Category)))
		return rule
	}
	res := types.ClassificationResult{Category: ans.Category, Confidence: 1.0, Source: types.SourceModel}
	c.cache.Put(key, res)
	return res
}

func (c *Classifier) record(ctx context.Context, user types.UserContext, ans ModelAnswer, text string) {
	if ans.Usage.Total() == 0 {
		return
	}
	name := user.UserName
	if name == "" {
		name = "Unknown"
	}
	id := user.UserID
	if id == "" {
		id = "system"
	}
	c.usage.Record(ctx, usage.Record{
		UserID:   id,
		UserName: name + " [Classifier]",
		Model:    ans.Model,
		Kind:     usage.KindClassifier,
		Usage:    ans.Usage,
		Preview:  text,
	})
}

// CacheStats reports the classification cache counters.
func (c *Classifier) CacheStats() cache.Stats {
	return c.cache.Stats()
}
