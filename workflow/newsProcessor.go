package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/integrations"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/sirupsen/logrus"
)

const newsProcessorLockKey = "budget:news-processor"

type NewsFetcher interface {
	Fetch(ctx context.Context, q integrations.NewsQuery) (*integrations.NewsBatch, error)
}

type DecisionMaker interface {
	Decide(ctx context.Context, articles []*models.NewsArticle) (map[string]json.RawMessage, error)
}

// FetchNews pulls one page of articles and upserts it. It returns the number stored.
func FetchNews(ctx context.Context, fetcher NewsFetcher, q integrations.NewsQuery) (int, error) {
	batch, err := fetcher.Fetch(ctx, q)
	if err != nil {
		return 0, err
	}
	return models.SaveNewsArticles(ctx, batch.Articles, batch.Log)
}

// ProcessNews sends the latest articles to the decision service and stores one alert per decision.
// Decisions that cannot be parsed are logged and skipped.
func ProcessNews(ctx context.Context, decider DecisionMaker, limit int) ([]*models.Alert, error) {
	articles, err := models.LatestNewsArticles(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, nil
	}
	decisions, err := decider.Decide(ctx, articles)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(decisions))
	for k := range decisions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	alerts := make([]*models.Alert, 0, len(keys))
	for _, key := range keys {
		alert, err := models.AlertFromDecision(key, decisions[key])
		if err != nil {
			config.GetLogger().WithFields(logrus.Fields{
				"field":        "ProcessNews",
				"decision_key": key,
			}).Warn("skip decision: " + err.Error())
			continue
		}
		alerts = append(alerts, alert)
	}
	if err := models.SaveAlerts(ctx, alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// AcceptNewsAlert applies an alert to its matching cost line.
func AcceptNewsAlert(ctx context.Context, alertId int, user string, costId *int) (*models.AlertAcceptResult, error) {
	var result *models.AlertAcceptResult
	err := withLock(ctx, fmt.Sprintf("budget:alert:%d", alertId), func() error {
		var err error
		result, err = models.AcceptAlert(ctx, alertId, user, costId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// NewsWorker runs fetch and process on an interval. Only one instance works per tick.
type NewsWorker struct {
	Fetcher  NewsFetcher
	Decider  DecisionMaker
	Query    integrations.NewsQuery
	Limit    int
	Interval time.Duration
	Logger   *logrus.Logger
}

func (w *NewsWorker) Run(ctx context.Context) {
	if w.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one fetch and process cycle. A fetch failure does not stop processing
// articles already stored.
func (w *NewsWorker) RunOnce(ctx context.Context) {
	logger := w.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	entry := logger.WithField("field", "NewsWorker")

	err := withLock(ctx, newsProcessorLockKey, func() error {
		if w.Fetcher != nil {
			saved, err := FetchNews(ctx, w.Fetcher, w.Query)
			if err != nil {
				entry.Error("fetch news: " + err.Error())
			} else {
				entry.WithField("saved", saved).Info("news fetched")
			}
		}
		if w.Decider == nil {
			return nil
		}
		alerts, err := ProcessNews(ctx, w.Decider, w.Limit)
		if err != nil {
			return err
		}
		entry.WithField("alerts", len(alerts)).Info("news processed")
		return nil
	})
	switch {
	case errors.Is(err, utils.ErrorConcurrencyConflict):
		entry.Info("another instance is processing news")
	case err != nil:
		entry.Error("process news: " + err.Error())
	}
}
