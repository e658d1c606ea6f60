package integrations

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hohbackend/budget_backend/models"
)

// ChatbotRequest is the body the costing assistant expects.
type ChatbotRequest struct {
	Question         string                            `json:"question"`
	PreviousChat     map[string]models.ChatTurn        `json:"previous_chat"`
	PreviousDecision map[string]models.DecisionSummary `json:"previous_decision"`
	CostingJSON      *models.CostingEnvelope           `json:"costing_json"`
}

type ChatbotCosting struct {
	Status  string              `json:"status"`
	Message string              `json:"message,omitempty"`
	Data    *models.CostingData `json:"data"`
}

type ChatbotReply struct {
	Answer  string          `json:"answer"`
	Costing *ChatbotCosting `json:"costing"`
	// Raw keeps the full response for the message metadata.
	Raw json.RawMessage `json:"-"`
}

// HasProposal reports whether the reply carries a usable revised budget.
func (r *ChatbotReply) HasProposal() bool {
	return r.Costing != nil && r.Costing.Status == "success" && r.Costing.Data != nil
}

type ChatbotClient struct {
	c *jsonClient
}

func NewChatbotClient(apiURL string) (*ChatbotClient, error) {
	c, err := newJSONClient("chatbot", apiURL, 300*time.Second)
	if err != nil {
		return nil, err
	}
	return &ChatbotClient{c: c}, nil
}

func (cl *ChatbotClient) Ask(ctx context.Context, req *ChatbotRequest) (*ChatbotReply, error) {
	if req.PreviousChat == nil {
		req.PreviousChat = map[string]models.ChatTurn{}
	}
	if req.PreviousDecision == nil {
		req.PreviousDecision = map[string]models.DecisionSummary{}
	}
	body, err := cl.c.postJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	var reply ChatbotReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, err
	}
	if reply.Answer == "" {
		reply.Answer = "No response from chatbot"
	}
	reply.Raw = json.RawMessage(body)
	return &reply, nil
}
