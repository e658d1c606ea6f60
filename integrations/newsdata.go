package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hohbackend/budget_backend/models"
	"gorm.io/datatypes"
)

const newsPubDateLayout = "2006-01-02 15:04:05"

// NewsQuery is the search sent to the news provider.
type NewsQuery struct {
	Query    string
	Country  string
	Language string
}

func (q NewsQuery) params(apiKey string) url.Values {
	v := url.Values{}
	v.Set("apikey", apiKey)
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	if q.Country != "" {
		v.Set("country", q.Country)
	}
	if q.Language != "" {
		v.Set("language", q.Language)
	}
	return v
}

type newsArticleJSON struct {
	ArticleId      string   `json:"article_id"`
	Title          string   `json:"title"`
	Link           string   `json:"link"`
	Description    *string  `json:"description"`
	Content        *string  `json:"content"`
	AISummary      *string  `json:"ai_summary"`
	PubDate        string   `json:"pubDate"`
	PubDateTZ      string   `json:"pubDateTZ"`
	ImageUrl       *string  `json:"image_url"`
	VideoUrl       *string  `json:"video_url"`
	SourceId       string   `json:"source_id"`
	SourceName     string   `json:"source_name"`
	SourcePriority *int     `json:"source_priority"`
	SourceUrl      *string  `json:"source_url"`
	SourceIcon     *string  `json:"source_icon"`
	Language       string   `json:"language"`
	Country        []string `json:"country"`
	Category       []string `json:"category"`
	Keywords       []string `json:"keywords"`
	Creator        []string `json:"creator"`
	Duplicate      bool     `json:"duplicate"`
}

type newsResponseJSON struct {
	Status       string            `json:"status"`
	TotalResults int               `json:"totalResults"`
	NextPage     *string           `json:"nextPage"`
	Results      []newsArticleJSON `json:"results"`
}

// NewsBatch is one page of articles plus the fetch log to store with it.
type NewsBatch struct {
	Articles []*models.NewsArticle
	Log      *models.NewsFetchLog
}

type NewsClient struct {
	c      *jsonClient
	apiKey string
}

func NewNewsClient(apiURL, apiKey string) (*NewsClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("news api key is empty")
	}
	c, err := newJSONClient("news", apiURL, 30*time.Second)
	if err != nil {
		return nil, err
	}
	return &NewsClient{c: c, apiKey: apiKey}, nil
}

func (cl *NewsClient) Fetch(ctx context.Context, q NewsQuery) (*NewsBatch, error) {
	params := q.params(cl.apiKey)
	body, err := cl.c.get(ctx, params)
	if err != nil {
		return nil, err
	}
	var parsed newsResponseJSON
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if parsed.Status != "success" {
		return nil, &APIError{Service: "news", StatusCode: 200, Body: strings.TrimSpace(string(body))}
	}

	// the key never goes to the fetch log
	params.Del("apikey")
	logged, _ := json.Marshal(params)

	batch := &NewsBatch{
		Log: &models.NewsFetchLog{
			Status:       parsed.Status,
			TotalResults: parsed.TotalResults,
			NextPage:     parsed.NextPage,
			QueryParams:  datatypes.JSON(logged),
		},
	}
	now := time.Now().UTC()
	for _, a := range parsed.Results {
		if a.ArticleId == "" {
			continue
		}
		batch.Articles = append(batch.Articles, a.toModel(now))
	}
	return batch, nil
}

func (a newsArticleJSON) toModel(now time.Time) *models.NewsArticle {
	pubDate := now
	if a.PubDate != "" {
		if t, err := time.Parse(newsPubDateLayout, a.PubDate); err == nil {
			pubDate = t
		}
	}
	content := a.Content
	if a.AISummary != nil && strings.EqualFold(*a.AISummary, models.PaidPlanContentMarker) {
		content = nil
	}
	return &models.NewsArticle{
		ArticleId:      a.ArticleId,
		Title:          a.Title,
		Link:           a.Link,
		Description:    a.Description,
		Content:        content,
		PubDate:        pubDate,
		PubDateTZ:      a.PubDateTZ,
		ImageUrl:       a.ImageUrl,
		VideoUrl:       a.VideoUrl,
		SourceId:       a.SourceId,
		SourceName:     a.SourceName,
		SourcePriority: a.SourcePriority,
		SourceUrl:      a.SourceUrl,
		SourceIcon:     a.SourceIcon,
		Language:       a.Language,
		Country:        datatypes.JSONSlice[string](a.Country),
		Category:       datatypes.JSONSlice[string](a.Category),
		Keywords:       datatypes.JSONSlice[string](a.Keywords),
		Creator:        datatypes.JSONSlice[string](a.Creator),
		Duplicate:      a.Duplicate,
	}
}
