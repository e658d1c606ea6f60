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

type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeAssistant MessageType = "assistant"
	MessageTypeSystem    MessageType = "system"
)

const ChatAcceptReason = "Updated from chat accept API"

func ChatAcceptActor(user string) string {
	return "chat_accept_" + user
}

type ChatSession struct {
	ID        int       `gorm:"primary_key" json:"id"`
	ProjectId int       `gorm:"index;not null" json:"project_id"`
	UserId    int       `gorm:"index;not null" json:"user_id"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Conversation struct {
	ID        int       `gorm:"primary_key" json:"id"`
	SessionId int       `gorm:"index;not null" json:"session_id"`
	ProjectId int       `gorm:"index;not null" json:"project_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Message struct {
	ID             int            `gorm:"primary_key" json:"id"`
	SessionId      int            `gorm:"index" json:"session_id"`
	ConversationId int            `gorm:"index;not null" json:"conversation_id"`
	SenderId       *int           `gorm:"index" json:"sender_id"`
	MessageType    MessageType    `gorm:"size:20;not null;default:'user'" json:"message_type"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Metadata       datatypes.JSON `json:"metadata"`
	IsHide         bool           `gorm:"not null;default:false" json:"is_hide"`
	IsAccept       *bool          `json:"is_accept"`
	AcceptedAt     *time.Time     `json:"accepted_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// CostProposal is a budget returned by the chatbot, pending the user's decision.
// IsAccept is nil until decided.
type CostProposal struct {
	ID                 int              `gorm:"primary_key" json:"id"`
	ConversationId     int              `gorm:"index;not null" json:"conversation_id"`
	MessageId          *int             `gorm:"index" json:"message_id"`
	ProjectId          int              `gorm:"index;not null" json:"project_id"`
	ProjectName        string           `gorm:"size:255" json:"project_name"`
	ProjectLocation    *string          `gorm:"size:500" json:"project_location"`
	TotalCost          *decimal.Decimal `gorm:"type:decimal(20,2)" json:"total_cost"`
	StartDate          *string          `gorm:"size:10" json:"start_date"`
	EndDate            *string          `gorm:"size:10" json:"end_date"`
	CostLineItems      datatypes.JSON   `json:"cost_line_items"`
	Overheads          datatypes.JSON   `json:"overheads"`
	IsAccept           *bool            `json:"is_accept"`
	AcceptedAt         *time.Time       `json:"accepted_at"`
	RawCostingResponse datatypes.JSON   `json:"raw_costing_response"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *CostProposal) Data() (*CostingData, error) {
	data := CostingData{
		Project: CostingProject{
			Name:      p.ProjectName,
			Location:  utils.DerefString(p.ProjectLocation),
			StartDate: p.StartDate,
			EndDate:   p.EndDate,
		},
	}
	if p.TotalCost != nil {
		data.Project.TotalCost = p.TotalCost.InexactFloat64()
	}
	if len(p.CostLineItems) > 0 {
		if err := json.Unmarshal(p.CostLineItems, &data.CostLineItems); err != nil {
			return nil, err
		}
	}
	if len(p.Overheads) > 0 {
		if err := json.Unmarshal(p.Overheads, &data.Overheads); err != nil {
			return nil, err
		}
	}
	return &data, nil
}

type ChatStart struct {
	Session      *ChatSession  `json:"session"`
	Conversation *Conversation `json:"conversation"`
	Created      bool          `json:"created"`
}

// StartChatSession returns the user's session and latest conversation for a project,
// creating both with a welcome message on first use.
func StartChatSession(ctx context.Context, userId int, projectId int) (*ChatStart, error) {
	var out ChatStart
	err := runInTx(ctx, "StartChatSession", func(tx *gorm.DB) error {
		project, err := utils.FetchModelTx[Project](tx, projectId)
		if err != nil {
			return err
		}

		var session ChatSession
		err = tx.Where("user_id = ? AND project_id = ?", userId, projectId).Order("id DESC").Take(&session).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			session = ChatSession{ProjectId: projectId, UserId: userId, IsActive: true}
			if err := tx.Create(&session).Error; err != nil {
				return err
			}
			out.Created = true
		case err != nil:
			return err
		}

		var conversation Conversation
		err = tx.Where("session_id = ?", session.ID).Order("id DESC").Take(&conversation).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			conversation = Conversation{SessionId: session.ID, ProjectId: projectId}
			if err := tx.Create(&conversation).Error; err != nil {
				return err
			}
			meta, _ := json.Marshal(map[string]interface{}{
				"welcome_message": true,
				"project_info":    map[string]interface{}{"name": project.Name, "location": project.Location},
			})
			welcome := Message{
				SessionId:      session.ID,
				ConversationId: conversation.ID,
				MessageType:    MessageTypeAssistant,
				Content:        fmt.Sprintf("Welcome to %s! I'm your AI assistant ready to help you with project-related questions and cost management.", project.Name),
				Metadata:       datatypes.JSON(meta),
			}
			if err := tx.Create(&welcome).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		out.Session = &session
		out.Conversation = &conversation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func GetChatSession(ctx context.Context, id int) (*ChatSession, error) {
	return utils.FetchModel[ChatSession](ctx, id)
}

func GetConversation(ctx context.Context, id int) (*Conversation, error) {
	return utils.FetchModel[Conversation](ctx, id)
}

func ListUserChatSessions(ctx context.Context, userId int) ([]*ChatSession, error) {
	var results []*ChatSession
	if err := config.GetDB().WithContext(ctx).Where("user_id = ?", userId).Order("updated_at DESC").Find(&results).Error; err != nil {
		return nil, &utils.TransactionError{Op: "ListUserChatSessions", Err: err}
	}
	return results, nil
}

// NewConversation opens another conversation in an existing session.
func NewConversation(ctx context.Context, sessionId int) (*Conversation, error) {
	session, err := GetChatSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	conversation := Conversation{SessionId: session.ID, ProjectId: session.ProjectId}
	if err := config.GetDB().WithContext(ctx).Create(&conversation).Error; err != nil {
		return nil, &utils.TransactionError{Op: "NewConversation", Err: err}
	}
	return &conversation, nil
}

func ListConversationMessages(ctx context.Context, conversationId int, includeHidden bool) ([]*Message, error) {
	dbCtx := config.GetDB().WithContext(ctx).Where("conversation_id = ?", conversationId)
	if !includeHidden {
		dbCtx = dbCtx.Where("is_hide = ?", false)
	}
	var results []*Message
	if err := dbCtx.Order("created_at, id").Find(&results).Error; err != nil {
		return nil, &utils.TransactionError{Op: "ListConversationMessages", Err: err}
	}
	return results, nil
}

func SaveMessage(ctx context.Context, conversation *Conversation, senderId *int, messageType MessageType, content string, metadata interface{}) (*Message, error) {
	msg := Message{
		SessionId:      conversation.SessionId,
		ConversationId: conversation.ID,
		SenderId:       senderId,
		MessageType:    messageType,
		Content:        content,
	}
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, err
		}
		msg.Metadata = datatypes.JSON(b)
	}
	if err := config.GetDB().WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, &utils.TransactionError{Op: "SaveMessage", Err: err}
	}
	return &msg, nil
}

type ChatTurn struct {
	Human string `json:"Human"`
	AI    string `json:"AI"`
}

// PreviousChat pairs user and assistant messages in order, keyed "1", "2", ...
// A user message without an answer yet is dropped.
func PreviousChat(ctx context.Context, conversationId int, limit int) (map[string]ChatTurn, error) {
	var messages []*Message
	err := config.GetDB().WithContext(ctx).
		Where("conversation_id = ? AND message_type IN ?", conversationId, []MessageType{MessageTypeUser, MessageTypeAssistant}).
		Order("created_at, id").
		Limit(limit * 2).
		Find(&messages).Error
	if err != nil {
		return nil, &utils.TransactionError{Op: "PreviousChat", Err: err}
	}

	out := map[string]ChatTurn{}
	var human *string
	for _, m := range messages {
		switch m.MessageType {
		case MessageTypeUser:
			content := m.Content
			human = &content
		case MessageTypeAssistant:
			if human != nil {
				out[fmt.Sprint(len(out)+1)] = ChatTurn{Human: *human, AI: m.Content}
				human = nil
			}
		}
	}
	return out, nil
}

func SaveCostProposal(ctx context.Context, conversation *Conversation, messageId *int, data *CostingData, raw []byte) (*CostProposal, error) {
	lines, err := json.Marshal(data.CostLineItems)
	if err != nil {
		return nil, err
	}
	overheads, err := json.Marshal(data.Overheads)
	if err != nil {
		return nil, err
	}
	proposal := CostProposal{
		ConversationId:     conversation.ID,
		MessageId:          messageId,
		ProjectId:          conversation.ProjectId,
		ProjectName:        data.Project.Name,
		ProjectLocation:    optionalString(data.Project.Location),
		StartDate:          normalizeDate(data.Project.StartDate),
		EndDate:            normalizeDate(data.Project.EndDate),
		CostLineItems:      datatypes.JSON(lines),
		Overheads:          datatypes.JSON(overheads),
		RawCostingResponse: datatypes.JSON(raw),
	}
	if data.Project.TotalCost > 0 {
		proposal.TotalCost = money(data.Project.TotalCost)
	}
	if err := config.GetDB().WithContext(ctx).Create(&proposal).Error; err != nil {
		return nil, &utils.TransactionError{Op: "SaveCostProposal", Err: err}
	}
	return &proposal, nil
}

func GetCostProposal(ctx context.Context, id int) (*CostProposal, error) {
	return utils.FetchModel[CostProposal](ctx, id)
}

func ListCostProposals(ctx context.Context, conversationId *int, projectId *int) ([]*CostProposal, error) {
	dbCtx := config.GetDB().WithContext(ctx)
	if conversationId != nil && *conversationId > 0 {
		dbCtx = dbCtx.Where("conversation_id = ?", *conversationId)
	}
	if projectId != nil && *projectId > 0 {
		dbCtx = dbCtx.Where("project_id = ?", *projectId)
	}
	var results []*CostProposal
	if err := dbCtx.Order("created_at DESC, id DESC").Find(&results).Error; err != nil {
		return nil, &utils.TransactionError{Op: "ListCostProposals", Err: err}
	}
	return results, nil
}

// ProposalAcceptResult lists every store write made by accepting a proposal.
type ProposalAcceptResult struct {
	Proposal         *CostProposal                    `json:"proposal"`
	Project          *UpdateResult[Project]           `json:"project"`
	UpdatedCosts     []*UpdateResult[ProjectCost]     `json:"updated_costs"`
	CreatedCosts     []*ProjectCost                   `json:"created_costs"`
	UpdatedOverheads []*UpdateResult[ProjectOverhead] `json:"updated_overheads"`
	CreatedOverheads []*ProjectOverhead               `json:"created_overheads"`
}

func costKey(categoryCode, itemDescription string) string {
	return strings.ToLower(strings.TrimSpace(categoryCode)) + "\x00" + strings.ToLower(strings.TrimSpace(itemDescription))
}

func lockProposal(tx *gorm.DB, id int) (*CostProposal, error) {
	q := tx
	if supportsRowLocks(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return utils.FetchModelTx[CostProposal](q, id)
}

// AcceptCostProposal applies a proposal to the live budget in one transaction.
// Cost lines match on (category_code, item_description) and overheads on overhead_type;
// lines with no match are created.
func AcceptCostProposal(ctx context.Context, id int, user string) (*ProposalAcceptResult, error) {
	actor := ChatAcceptActor(user)
	var result ProposalAcceptResult
	err := runInTx(ctx, "AcceptCostProposal", func(tx *gorm.DB) error {
		proposal, err := lockProposal(tx, id)
		if err != nil {
			return err
		}
		if proposal.IsAccept != nil && *proposal.IsAccept {
			return utils.NewValidationError(map[string]string{"is_accept": "proposal is already accepted"})
		}
		data, err := proposal.Data()
		if err != nil {
			return utils.NewValidationError(map[string]string{"cost_line_items": "proposal payload is not readable"})
		}

		projectPatch := &ProjectPatch{ChangeReason: ChatAcceptReason}
		if data.Project.Name != "" {
			projectPatch.Name = &data.Project.Name
		}
		projectPatch.Location = optionalString(data.Project.Location)
		projectPatch.StartDate = data.Project.StartDate
		projectPatch.EndDate = data.Project.EndDate
		projectPatch.TotalProjectCost = proposal.TotalCost
		if result.Project, err = UpdateProjectTx(tx, proposal.ProjectId, projectPatch, actor); err != nil {
			return err
		}

		if err := acceptProposalCosts(tx, proposal.ProjectId, data.CostLineItems, actor, &result); err != nil {
			return err
		}
		if err := acceptProposalOverheads(tx, proposal.ProjectId, data.Overheads, actor, &result); err != nil {
			return err
		}

		now := tx.NowFunc()
		if err := tx.Model(&CostProposal{}).Where("id = ?", id).Updates(map[string]interface{}{
			"is_accept":   true,
			"accepted_at": now,
		}).Error; err != nil {
			return err
		}
		if proposal.MessageId != nil {
			if err := tx.Model(&Message{}).Where("id = ?", *proposal.MessageId).Updates(map[string]interface{}{
				"is_accept":   true,
				"accepted_at": now,
			}).Error; err != nil {
				return err
			}
		}
		proposal.IsAccept = utils.NewTrue()
		proposal.AcceptedAt = &now
		result.Proposal = proposal

		return createActivity(tx, ActivityAccept, KindProject, proposal.ProjectId, proposal.ProjectId, actor,
			fmt.Sprintf("cost proposal %d accepted", proposal.ID), map[string]interface{}{
				"proposal_id":       proposal.ID,
				"updated_costs":     len(result.UpdatedCosts),
				"created_costs":     len(result.CreatedCosts),
				"updated_overheads": len(result.UpdatedOverheads),
				"created_overheads": len(result.CreatedOverheads),
			})
	})
	if err != nil {
		return nil, err
	}
	invalidateProject(ctx, result.Proposal.ProjectId)
	return &result, nil
}

func acceptProposalCosts(tx *gorm.DB, projectId int, items []CostingLineItem, actor string, result *ProposalAcceptResult) error {
	var existing []*ProjectCost
	if err := tx.Where("project_id = ?", projectId).Order("id").Find(&existing).Error; err != nil {
		return err
	}
	byKey := map[string]*ProjectCost{}
	for _, c := range existing {
		if _, ok := byKey[costKey(c.CategoryCode, c.ItemDescription)]; !ok {
			byKey[costKey(c.CategoryCode, c.ItemDescription)] = c
		}
	}

	for i, item := range items {
		match, ok := byKey[costKey(item.CategoryCode, item.ItemDescription)]
		if !ok {
			cost, err := (&NewProjectCost{
				ProjectId:       projectId,
				CategoryCode:    item.CategoryCode,
				CategoryName:    item.CategoryName,
				ItemDescription: item.ItemDescription,
				SupplierBrand:   optionalString(item.SupplierBrand),
				Unit:            optionalString(item.Unit),
				Quantity:        money(item.Quantity),
				RatePerUnit:     money(item.RatePerUnit),
				CategoryTotal:   optionalMoney(item.CategoryTotal),
			}).validate(true)
			if err != nil {
				return prefixValidation(fmt.Sprintf("cost_line_items[%d].", i), err)
			}
			if err := createProjectCostTx(tx, cost, actor); err != nil {
				return err
			}
			result.CreatedCosts = append(result.CreatedCosts, cost)
			continue
		}

		patch := &ProjectCostPatch{
			SupplierBrand: optionalString(item.SupplierBrand),
			Unit:          optionalString(item.Unit),
			Quantity:      money(item.Quantity),
			RatePerUnit:   money(item.RatePerUnit),
			CategoryTotal: optionalMoney(item.CategoryTotal),
			ChangeReason:  ChatAcceptReason,
		}
		if item.CategoryName != "" {
			patch.CategoryName = &item.CategoryName
		}
		if err := patch.Validate(); err != nil {
			return prefixValidation(fmt.Sprintf("cost_line_items[%d].", i), err)
		}
		updated, err := UpdateProjectCostTx(tx, match.ID, patch, actor)
		if err != nil {
			return err
		}
		result.UpdatedCosts = append(result.UpdatedCosts, updated)
	}
	return nil
}

func acceptProposalOverheads(tx *gorm.DB, projectId int, items []CostingOverhead, actor string, result *ProposalAcceptResult) error {
	var existing []*ProjectOverhead
	if err := tx.Where("project_id = ?", projectId).Order("id").Find(&existing).Error; err != nil {
		return err
	}
	byType := map[string]*ProjectOverhead{}
	for _, o := range existing {
		key := strings.ToLower(strings.TrimSpace(o.OverheadType))
		if _, ok := byType[key]; !ok {
			byType[key] = o
		}
	}

	for i, item := range items {
		match, ok := byType[strings.ToLower(strings.TrimSpace(item.OverheadType))]
		if !ok {
			overhead, err := (&NewProjectOverhead{
				ProjectId:    projectId,
				OverheadType: item.OverheadType,
				Description:  optionalString(item.Description),
				Basis:        optionalString(item.Basis),
				Percentage:   money(item.Percentage),
				Amount:       money(item.Amount),
			}).validate(true)
			if err != nil {
				return prefixValidation(fmt.Sprintf("overheads[%d].", i), err)
			}
			if err := createProjectOverheadTx(tx, overhead, actor); err != nil {
				return err
			}
			result.CreatedOverheads = append(result.CreatedOverheads, overhead)
			continue
		}

		patch := &ProjectOverheadPatch{
			Description:  optionalString(item.Description),
			Basis:        optionalString(item.Basis),
			Percentage:   money(item.Percentage),
			Amount:       money(item.Amount),
			ChangeReason: ChatAcceptReason,
		}
		if err := patch.Validate(); err != nil {
			return prefixValidation(fmt.Sprintf("overheads[%d].", i), err)
		}
		updated, err := UpdateProjectOverheadTx(tx, match.ID, patch, actor)
		if err != nil {
			return err
		}
		result.UpdatedOverheads = append(result.UpdatedOverheads, updated)
	}
	return nil
}

// optionalMoney treats an absent (zero) category total as "leave unchanged".
func optionalMoney(f float64) *decimal.Decimal {
	if f == 0 {
		return nil
	}
	return money(f)
}

func prefixValidation(prefix string, err error) error {
	ve, ok := err.(*utils.ValidationError)
	if !ok {
		return err
	}
	fields := make(map[string]string, len(ve.Fields))
	for k, v := range ve.Fields {
		fields[prefix+k] = v
	}
	return utils.NewValidationError(fields)
}

// RejectCostProposal records the decision without touching the budget.
func RejectCostProposal(ctx context.Context, id int) (*CostProposal, error) {
	var proposal *CostProposal
	err := runInTx(ctx, "RejectCostProposal", func(tx *gorm.DB) error {
		var err error
		proposal, err = lockProposal(tx, id)
		if err != nil {
			return err
		}
		if proposal.IsAccept != nil && *proposal.IsAccept {
			return utils.NewValidationError(map[string]string{"is_accept": "proposal is already accepted"})
		}
		if err := tx.Model(&CostProposal{}).Where("id = ?", id).Update("is_accept", false).Error; err != nil {
			return err
		}
		proposal.IsAccept = utils.NewFalse()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}
