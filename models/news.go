package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewsData puts this marker in content fields on the free plan.
const PaidPlanContentMarker = "ONLY AVAILABLE IN PAID PLANS"

func AlertAcceptActor(user string) string {
	return "alert_system_" + user
}

func AlertAcceptReason(decisionKey string) string {
	return "Accepted news alert " + decisionKey
}

type NewsArticle struct {
	ArticleId      string                      `gorm:"primaryKey;size:255" json:"article_id"`
	Title          string                      `gorm:"type:text;not null" json:"title"`
	Link           string                      `gorm:"size:500;not null" json:"link"`
	Description    *string                     `gorm:"type:text" json:"description"`
	Content        *string                     `gorm:"type:text" json:"content"`
	PubDate        time.Time                   `gorm:"index;not null" json:"pub_date"`
	PubDateTZ      string                      `gorm:"size:10;default:'UTC'" json:"pub_date_tz"`
	ImageUrl       *string                     `gorm:"size:500" json:"image_url"`
	VideoUrl       *string                     `gorm:"size:500" json:"video_url"`
	SourceId       string                      `gorm:"size:100;index" json:"source_id"`
	SourceName     string                      `gorm:"size:200" json:"source_name"`
	SourcePriority *int                        `json:"source_priority"`
	SourceUrl      *string                     `gorm:"size:500" json:"source_url"`
	SourceIcon     *string                     `gorm:"size:500" json:"source_icon"`
	Language       string                      `gorm:"size:50;index" json:"language"`
	Country        datatypes.JSONSlice[string] `json:"country"`
	Category       datatypes.JSONSlice[string] `json:"category"`
	Keywords       datatypes.JSONSlice[string] `json:"keywords"`
	Creator        datatypes.JSONSlice[string] `json:"creator"`
	Duplicate      bool                        `gorm:"not null;default:false" json:"duplicate"`
	CreatedAt      time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewsFetchLog records one call to the news provider.
type NewsFetchLog struct {
	ID            int            `gorm:"primary_key" json:"id"`
	Status        string         `gorm:"size:20" json:"status"`
	TotalResults  int            `json:"total_results"`
	NextPage      *string        `gorm:"size:100" json:"next_page"`
	QueryParams   datatypes.JSON `json:"query_params"`
	ArticlesSaved int            `json:"articles_saved"`
	FetchedAt     time.Time      `gorm:"autoCreateTime;index" json:"fetched_at"`
}

// Alert is one recommendation returned by the decision service.
type Alert struct {
	ID               int              `gorm:"primary_key" json:"id"`
	DecisionKey      string           `gorm:"size:100;index" json:"decision_key"`
	Decision         string           `gorm:"type:text" json:"decision"`
	Reason           string           `gorm:"type:text" json:"reason"`
	Suggestion       string           `gorm:"type:text" json:"suggestion"`
	CategoryName     *string          `gorm:"size:100" json:"category_name"`
	Item             *string          `gorm:"size:255" json:"item"`
	Unit             *string          `gorm:"size:50" json:"unit"`
	Quantity         *decimal.Decimal `gorm:"type:decimal(15,2)" json:"quantity"`
	OldSupplierBrand *string          `gorm:"size:150" json:"old_supplier_brand"`
	OldRatePerUnit   *decimal.Decimal `gorm:"type:decimal(15,2)" json:"old_rate_per_unit"`
	OldLineTotal     *decimal.Decimal `gorm:"type:decimal(20,2)" json:"old_line_total"`
	NewSupplierBrand *string          `gorm:"size:150" json:"new_supplier_brand"`
	NewRatePerUnit   *decimal.Decimal `gorm:"type:decimal(15,2)" json:"new_rate_per_unit"`
	NewLineTotal     *decimal.Decimal `gorm:"type:decimal(20,2)" json:"new_line_total"`
	CostImpact       *decimal.Decimal `gorm:"type:decimal(20,2)" json:"cost_impact"`
	ImpactReason     *string          `gorm:"type:text" json:"impact_reason"`
	RawResponse      datatypes.JSON   `json:"raw_response"`
	ProjectCostId    *int             `gorm:"index" json:"project_cost_id"`
	IsAccept         *bool            `json:"is_accept"`
	AcceptedAt       *time.Time       `json:"accepted_at"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// SaveNewsArticles upserts by article_id and writes the fetch log in the same transaction.
func SaveNewsArticles(ctx context.Context, articles []*NewsArticle, log *NewsFetchLog) (int, error) {
	for _, a := range articles {
		if a.Content != nil && strings.Contains(strings.ToUpper(*a.Content), PaidPlanContentMarker) {
			a.Content = nil
		}
		if a.PubDateTZ == "" {
			a.PubDateTZ = "UTC"
		}
	}

	err := runInTx(ctx, "SaveNewsArticles", func(tx *gorm.DB) error {
		if len(articles) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "article_id"}},
				UpdateAll: true,
			}).CreateInBatches(articles, 100).Error; err != nil {
				return err
			}
		}
		if log != nil {
			log.ArticlesSaved = len(articles)
			return tx.Create(log).Error
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(articles), nil
}

func LatestNewsArticles(ctx context.Context, limit int) ([]*NewsArticle, error) {
	if limit <= 0 {
		limit = 20
	}
	var results []*NewsArticle
	if err := config.GetDB().WithContext(ctx).Order("pub_date DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, &utils.TransactionError{Op: "LatestNewsArticles", Err: err}
	}
	return results, nil
}

func ListNewsFetchLogs(ctx context.Context, limit int) ([]*NewsFetchLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var results []*NewsFetchLog
	if err := config.GetDB().WithContext(ctx).Order("fetched_at DESC, id DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, &utils.TransactionError{Op: "ListNewsFetchLogs", Err: err}
	}
	return results, nil
}

func SaveAlerts(ctx context.Context, alerts []*Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	return runInTx(ctx, "SaveAlerts", func(tx *gorm.DB) error {
		return tx.Create(&alerts).Error
	})
}

func GetAlert(ctx context.Context, id int) (*Alert, error) {
	return utils.FetchModel[Alert](ctx, id)
}

// ListAlerts filters on the decision state; pending means no decision yet.
func ListAlerts(ctx context.Context, state string, limit int) ([]*Alert, error) {
	dbCtx := config.GetDB().WithContext(ctx)
	switch state {
	case "pending":
		dbCtx = dbCtx.Where("is_accept IS NULL")
	case "accepted":
		dbCtx = dbCtx.Where("is_accept = ?", true)
	case "rejected":
		dbCtx = dbCtx.Where("is_accept = ?", false)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var results []*Alert
	if err := dbCtx.Order("created_at DESC, id DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, &utils.TransactionError{Op: "ListAlerts", Err: err}
	}
	return results, nil
}

type DecisionSummary struct {
	Decision         string     `json:"decision"`
	Reason           string     `json:"reason"`
	Suggestion       string     `json:"suggestion"`
	CategoryName     string     `json:"category_name"`
	Item             string     `json:"item"`
	OldSupplierBrand string     `json:"old_supplier_brand"`
	OldRatePerUnit   float64    `json:"old_rate_per_unit"`
	NewSupplierBrand string     `json:"new_supplier_brand"`
	NewRatePerUnit   float64    `json:"new_rate_per_unit"`
	CostImpact       float64    `json:"cost_impact"`
	AcceptedAt       *time.Time `json:"accepted_at"`
}

func floatOf(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}

// AcceptedDecisions lists accepted alerts newest first, keyed "1", "2", ...
func AcceptedDecisions(ctx context.Context) (map[string]DecisionSummary, error) {
	var alerts []*Alert
	if err := config.GetDB().WithContext(ctx).Where("is_accept = ?", true).Order("accepted_at DESC, id DESC").Find(&alerts).Error; err != nil {
		return nil, &utils.TransactionError{Op: "AcceptedDecisions", Err: err}
	}
	out := make(map[string]DecisionSummary, len(alerts))
	for i, a := range alerts {
		out[fmt.Sprint(i+1)] = DecisionSummary{
			Decision:         a.Decision,
			Reason:           a.Reason,
			Suggestion:       a.Suggestion,
			CategoryName:     utils.DerefString(a.CategoryName),
			Item:             utils.DerefString(a.Item),
			OldSupplierBrand: utils.DerefString(a.OldSupplierBrand),
			OldRatePerUnit:   floatOf(a.OldRatePerUnit),
			NewSupplierBrand: utils.DerefString(a.NewSupplierBrand),
			NewRatePerUnit:   floatOf(a.NewRatePerUnit),
			CostImpact:       floatOf(a.CostImpact),
			AcceptedAt:       a.AcceptedAt,
		}
	}
	return out, nil
}

type AlertAcceptResult struct {
	Alert *Alert                     `json:"alert"`
	Cost  *UpdateResult[ProjectCost] `json:"cost"`
}

func lockAlert(tx *gorm.DB, id int) (*Alert, error) {
	q := tx
	if supportsRowLocks(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return utils.FetchModelTx[Alert](q, id)
}

// findAlertCost resolves the cost line an alert refers to. An explicit id wins;
// otherwise the newest line with the same category name and item description is used.
func findAlertCost(tx *gorm.DB, alert *Alert, costId *int) (*ProjectCost, error) {
	if costId != nil && *costId > 0 {
		return utils.FetchModelTx[ProjectCost](tx, *costId)
	}
	if alert.ProjectCostId != nil {
		return utils.FetchModelTx[ProjectCost](tx, *alert.ProjectCostId)
	}
	if alert.CategoryName == nil || alert.Item == nil {
		return nil, utils.NewValidationError(map[string]string{"project_cost_id": "alert does not name a cost line"})
	}
	var cost ProjectCost
	err := tx.Where("LOWER(category_name) = ? AND LOWER(item_description) = ?",
		strings.ToLower(strings.TrimSpace(*alert.CategoryName)),
		strings.ToLower(strings.TrimSpace(*alert.Item))).
		Order("updated_at DESC, id DESC").
		Take(&cost).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &cost, nil
}

// AcceptAlert applies the alert's new supplier and rate to the matching cost line.
func AcceptAlert(ctx context.Context, id int, user string, costId *int) (*AlertAcceptResult, error) {
	var result AlertAcceptResult
	err := runInTx(ctx, "AcceptAlert", func(tx *gorm.DB) error {
		alert, err := lockAlert(tx, id)
		if err != nil {
			return err
		}
		if alert.IsAccept != nil && *alert.IsAccept {
			return utils.NewValidationError(map[string]string{"is_accept": "alert is already accepted"})
		}
		cost, err := findAlertCost(tx, alert, costId)
		if err != nil {
			return err
		}

		patch := &ProjectCostPatch{
			SupplierBrand: alert.NewSupplierBrand,
			RatePerUnit:   alert.NewRatePerUnit,
			ChangeReason:  AlertAcceptReason(alert.DecisionKey),
		}
		if patch.RatePerUnit != nil {
			rate := patch.RatePerUnit.Round(2)
			patch.RatePerUnit = &rate
		}
		actor := AlertAcceptActor(user)
		if result.Cost, err = UpdateProjectCostTx(tx, cost.ID, patch, actor); err != nil {
			return err
		}

		now := tx.NowFunc()
		if err := tx.Model(&Alert{}).Where("id = ?", id).Updates(map[string]interface{}{
			"is_accept":       true,
			"accepted_at":     now,
			"project_cost_id": cost.ID,
		}).Error; err != nil {
			return err
		}
		alert.IsAccept = utils.NewTrue()
		alert.AcceptedAt = &now
		alert.ProjectCostId = &cost.ID
		result.Alert = alert

		return createActivity(tx, ActivityAccept, KindProjectCost, cost.ID, cost.ProjectId, actor,
			AlertAcceptReason(alert.DecisionKey), alert)
	})
	if err != nil {
		return nil, err
	}
	invalidateProject(ctx, result.Cost.Entity.ProjectId)
	return &result, nil
}

func RejectAlert(ctx context.Context, id int) (*Alert, error) {
	var alert *Alert
	err := runInTx(ctx, "RejectAlert", func(tx *gorm.DB) error {
		var err error
		alert, err = lockAlert(tx, id)
		if err != nil {
			return err
		}
		if alert.IsAccept != nil && *alert.IsAccept {
			return utils.NewValidationError(map[string]string{"is_accept": "alert is already accepted"})
		}
		alert.IsAccept = utils.NewFalse()
		return tx.Model(&Alert{}).Where("id = ?", id).Update("is_accept", false).Error
	})
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// AlertFromDecision maps one entry of the decision service's response map.
func AlertFromDecision(decisionKey string, raw json.RawMessage) (*Alert, error) {
	var body struct {
		Decision       string `json:"decision"`
		Reason         string `json:"reason"`
		Suggestion     string `json:"suggestion"`
		UpdatedCosting struct {
			CategoryName *string          `json:"category_name"`
			Item         *string          `json:"item"`
			Unit         *string          `json:"unit"`
			Quantity     *decimal.Decimal `json:"quantity"`
			CostImpact   *decimal.Decimal `json:"cost_impact"`
			ImpactReason *string          `json:"impact_reason"`
			OldValues    struct {
				SupplierBrand *string          `json:"supplier_brand"`
				RatePerUnit   *decimal.Decimal `json:"rate_per_unit"`
				LineTotal     *decimal.Decimal `json:"line_total"`
			} `json:"old_values"`
			NewValues struct {
				SupplierBrand *string          `json:"supplier_brand"`
				RatePerUnit   *decimal.Decimal `json:"rate_per_unit"`
				LineTotal     *decimal.Decimal `json:"line_total"`
			} `json:"new_values"`
		} `json:"updated_costing"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	uc := body.UpdatedCosting
	return &Alert{
		DecisionKey:      decisionKey,
		Decision:         body.Decision,
		Reason:           body.Reason,
		Suggestion:       body.Suggestion,
		CategoryName:     uc.CategoryName,
		Item:             uc.Item,
		Unit:             uc.Unit,
		Quantity:         uc.Quantity,
		OldSupplierBrand: uc.OldValues.SupplierBrand,
		OldRatePerUnit:   uc.OldValues.RatePerUnit,
		OldLineTotal:     uc.OldValues.LineTotal,
		NewSupplierBrand: uc.NewValues.SupplierBrand,
		NewRatePerUnit:   uc.NewValues.RatePerUnit,
		NewLineTotal:     uc.NewValues.LineTotal,
		CostImpact:       uc.CostImpact,
		ImpactReason:     uc.ImpactReason,
		RawResponse:      datatypes.JSON(raw),
	}, nil
}
