package conversation

import (
	"errors"
	"fmt"
)

// AgentID names a node of the conversation graph.
type AgentID string

const (
	Supervisor       AgentID = "supervisor"
	End              AgentID = "__end__"
	HumanInteraction AgentID = "human_interaction"

	// Appliance-parts deployment.
	RepairAgent     AgentID = "repair_agent"
	ValidationAgent AgentID = "validation_agent"
	DataAgent       AgentID = "data_agent"
	SummaryAgent    AgentID = "summary_agent"
	BlogAgent       AgentID = "blog_agent"

	// Pool-equipment deployment.
	ProductSearchAgent AgentID = "product_search_agent"
	ProductInfoAgent   AgentID = "product_info_agent"
	StoreSearchAgent   AgentID = "store_search_agent"
	StoreInfoAgent     AgentID = "store_info_agent"
)

// AgentRequest is one worker's declared need for another worker's capability
// or for user input.
type AgentRequest struct {
	RequestingAgent AgentID `json:"requesting_agent"`
	TargetAgent     AgentID `json:"target_agent"`
	RequestType     string  `json:"request_type"`
	RequestInfo     string  `json:"request_info"`
}

func (r *AgentRequest) Validate() error {
	if r.RequestingAgent == "" {
		return errors.New("requesting_agent is required")
	}
	if r.TargetAgent == "" {
		return errors.New("target_agent is required")
	}
	return nil
}

func (r AgentRequest) String() string {
	return fmt.Sprintf("%s -> %s (%s)", r.RequestingAgent, r.TargetAgent, r.RequestType)
}

// AgentResponse is the fulfilment of an AgentRequest.
type AgentResponse struct {
	RespondingAgent AgentID        `json:"responding_agent"`
	RequestingAgent AgentID        `json:"requesting_agent"`
	ResponseData    map[string]any `json:"response_data"`
}

// ResponseQueue holds fulfilled responses keyed by the agent that asked for
// them, in arrival order.
type ResponseQueue map[AgentID][]AgentResponse

func (q ResponseQueue) Push(r AgentResponse) ResponseQueue {
	if q == nil {
		q = make(ResponseQueue)
	}
	q[r.RequestingAgent] = append(q[r.RequestingAgent], r)
	return q
}

// Peek returns the responses waiting for requester without removing them.
func (q ResponseQueue) Peek(requester AgentID) []AgentResponse {
	return q[requester]
}

// Consume returns and removes the responses waiting for requester.
func (q ResponseQueue) Consume(requester AgentID) []AgentResponse {
	out := q[requester]
	delete(q, requester)
	return out
}

func (q ResponseQueue) Len() int {
	n := 0
	for _, rs := range q {
		n += len(rs)
	}
	return n
}

func (q ResponseQueue) Clone() ResponseQueue {
	if q == nil {
		return nil
	}
	out := make(ResponseQueue, len(q))
	for k, rs := range q {
		out[k] = append([]AgentResponse(nil), rs...)
	}
	return out
}
