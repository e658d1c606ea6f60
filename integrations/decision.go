package integrations

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hohbackend/budget_backend/models"
)

type decisionNews struct {
	Success bool                  `json:"success"`
	Count   int                   `json:"count"`
	Results []*models.NewsArticle `json:"results"`
}

type decisionRequest struct {
	News decisionNews `json:"news"`
}

type decisionResponse struct {
	Response map[string]json.RawMessage `json:"response"`
}

type DecisionClient struct {
	c *jsonClient
}

func NewDecisionClient(apiURL string) (*DecisionClient, error) {
	c, err := newJSONClient("decision", apiURL, 120*time.Second)
	if err != nil {
		return nil, err
	}
	return &DecisionClient{c: c}, nil
}

// Decide sends the articles and returns one raw decision per key.
// A reply without a "response" object yields an empty map.
func (cl *DecisionClient) Decide(ctx context.Context, articles []*models.NewsArticle) (map[string]json.RawMessage, error) {
	if articles == nil {
		articles = []*models.NewsArticle{}
	}
	body, err := cl.c.postJSON(ctx, decisionRequest{News: decisionNews{
		Success: true,
		Count:   len(articles),
		Results: articles,
	}})
	if err != nil {
		return nil, err
	}
	var parsed decisionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if parsed.Response == nil {
		return map[string]json.RawMessage{}, nil
	}
	return parsed.Response, nil
}
