package agents

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/llm"
)

// Output is a role's structured result. Every variant validates its own
// shape and may carry a request for another agent.
type Output interface {
	llm.Validator
	Kind() string
	Schema() map[string]any
	InfoNeeded() *conversation.AgentRequest
}

// Spec returns the output spec offered to the model for o.
func Spec(o Output) *llm.OutputSpec {
	return &llm.OutputSpec{
		Name:        o.Kind(),
		Description: fmt.Sprintf("Return your result as a %s object. Call this exactly once, when you are done.", o.Kind()),
		Schema:      o.Schema(),
	}
}

// Render formats o as the message content appended to the conversation.
func Render(o Output) string {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Sprintf("%s: %v", o.Kind(), err)
	}
	return string(data)
}

// pending is embedded by outputs that can ask another agent for help.
type pending struct {
	Info *conversation.AgentRequest `json:"info_needed"`
}

func (p pending) InfoNeeded() *conversation.AgentRequest {
	if p.Info == nil || (p.Info.TargetAgent == "" && p.Info.RequestInfo == "") {
		return nil
	}
	return p.Info
}

type noRequest struct{}

func (noRequest) InfoNeeded() *conversation.AgentRequest { return nil }

func requestSchema() map[string]any {
	return llm.Nullable(llm.Object(map[string]any{
		"requesting_agent": llm.String("your own agent name"),
		"target_agent":     llm.String("the agent that must provide the information"),
		"request_type":     llm.String("the type of request, e.g. model_number, problem, part, info"),
		"request_info":     llm.String("what is needed, phrased for the target agent"),
	}, "target_agent", "request_type", "request_info"))
}

func strs(desc string) map[string]any {
	return llm.Nullable(llm.Array(llm.String(""), desc))
}

// RepairInfo tracks progress through the instant-repair process.
type RepairInfo struct {
	ProvidedModelNumber *bool    `json:"provided_model_number"`
	ListOfProblems      []string `json:"list_of_problems"`
	ProvidedProblem     *string  `json:"provided_problem"`
	ListOfParts         []string `json:"list_of_parts"`
	pending
}

func (*RepairInfo) Kind() string { return "repair_info" }

func (*RepairInfo) Schema() map[string]any {
	return llm.Object(map[string]any{
		"provided_model_number": llm.Boolean("whether the user has provided a model number"),
		"list_of_problems":      strs("common problems for the model, only when a model number is known"),
		"provided_problem":      llm.Nullable(llm.String("the problem the user reported")),
		"list_of_parts":         strs("parts that fix the problem, only when a problem is known"),
		"info_needed":           requestSchema(),
	}, "provided_model_number", "info_needed")
}

func (r *RepairInfo) Validate() error {
	if r.ProvidedModelNumber == nil {
		return errors.New("provided_model_number is required")
	}
	return nil
}

// ValidationInfo is the verdict on a model, part or compatibility check.
type ValidationInfo struct {
	IsValidOrCompatible *bool    `json:"is_valid_or_compatible"`
	FoundItem           *string  `json:"found_item"`
	ItemSuggestions     []string `json:"item_suggestions"`
	pending
}

func (*ValidationInfo) Kind() string { return "validation_info" }

func (*ValidationInfo) Schema() map[string]any {
	return llm.Object(map[string]any{
		"is_valid_or_compatible": llm.Boolean("whether the item is valid or compatible"),
		"found_item":             llm.Nullable(llm.Enum("which item was found", "model_number", "part_number")),
		"item_suggestions":       strs("suggested model or part numbers when the item was not found"),
		"info_needed":            requestSchema(),
	}, "is_valid_or_compatible")
}

func (v *ValidationInfo) Validate() error {
	if v.IsValidOrCompatible == nil {
		return errors.New("is_valid_or_compatible is required")
	}
	if v.FoundItem != nil && *v.FoundItem != "model_number" && *v.FoundItem != "part_number" {
		return fmt.Errorf("found_item %q must be model_number or part_number", *v.FoundItem)
	}
	return nil
}

// MessageSummary condenses the conversation for other agents.
type MessageSummary struct {
	PartNumbers         []string `json:"part_numbers"`
	ModelNumbers        []string `json:"model_numbers"`
	IssuesReported      []string `json:"issues_reported"`
	ValidatedInfo       []string `json:"validated_info"`
	RepairSuggestions   []string `json:"repair_suggestions"`
	PendingQuestions    []string `json:"pending_questions"`
	CurrentState        string   `json:"current_state"`
	ConversationSummary string   `json:"conversation_summary"`
	noRequest
}

func (*MessageSummary) Kind() string { return "message_summary" }

func (*MessageSummary) Schema() map[string]any {
	return llm.Object(map[string]any{
		"part_numbers":         strs("part numbers mentioned"),
		"model_numbers":        strs("model numbers mentioned"),
		"issues_reported":      strs("issues reported"),
		"validated_info":       strs("information that has been validated"),
		"repair_suggestions":   strs("repair suggestions made"),
		"pending_questions":    strs("questions still pending"),
		"current_state":        llm.String("the current state of the conversation"),
		"conversation_summary": llm.String("a 2-3 sentence summary of the interaction so far"),
	}, "current_state", "conversation_summary")
}

func (m *MessageSummary) Validate() error {
	if m.ConversationSummary == "" {
		return errors.New("conversation_summary is required")
	}
	return nil
}

// BlogInfo lists blog articles relevant to the user's question.
type BlogInfo struct {
	SearchQuery   string   `json:"search_query"`
	FoundArticles []string `json:"found_articles"`
	pending
}

func (*BlogInfo) Kind() string { return "blog_info" }

func (*BlogInfo) Schema() map[string]any {
	return llm.Object(map[string]any{
		"search_query":   llm.String("the search query used or needed"),
		"found_articles": llm.Array(llm.String(""), "relevant articles with their titles, links and key points"),
		"info_needed":    requestSchema(),
	}, "search_query", "found_articles")
}

func (b *BlogInfo) Validate() error {
	if b.SearchQuery == "" && b.InfoNeeded() == nil {
		return errors.New("search_query is required")
	}
	return nil
}

type Product struct {
	Name               string  `json:"name"`
	PartNumber         *string `json:"part_number,omitempty"`
	ManufacturerNumber *string `json:"manufacturer_number,omitempty"`
	Price              *string `json:"price,omitempty"`
	ImageURL           *string `json:"image_url,omitempty"`
	AdditionalInfo     *string `json:"additional_info,omitempty"`
	Description        *string `json:"description,omitempty"`
}

func productSchema() map[string]any {
	return llm.Object(map[string]any{
		"name":                llm.String("product name"),
		"part_number":         llm.String("part number"),
		"manufacturer_number": llm.String("manufacturer model number"),
		"price":               llm.String("price as reported by the pricing tool"),
		"image_url":           llm.String("product image URL"),
		"additional_info":     llm.String("additional information"),
		"description":         llm.String("product description"),
	}, "name")
}

func validateProducts(ps []Product) error {
	for i, p := range ps {
		if p.Name == "" {
			return fmt.Errorf("product %d: name is required", i)
		}
		if p.ImageURL != nil && *p.ImageURL != "" {
			if err := validateURL(*p.ImageURL); err != nil {
				return fmt.Errorf("product %d: image_url: %w", i, err)
			}
		}
	}
	return nil
}

// ProductList is the product search result.
type ProductList struct {
	Products []Product `json:"products"`
	pending
}

func (*ProductList) Kind() string { return "product_list" }

func (*ProductList) Schema() map[string]any {
	return llm.Object(map[string]any{
		"products":    llm.Array(productSchema(), "relevant products found"),
		"info_needed": requestSchema(),
	}, "products")
}

func (p *ProductList) Validate() error { return validateProducts(p.Products) }

// ProductInfo answers a question about specific products.
type ProductInfo struct {
	SearchQuery       *string   `json:"search_query"`
	FoundProducts     []Product `json:"found_products"`
	SuggestedResponse *string   `json:"suggested_response"`
	pending
}

func (*ProductInfo) Kind() string { return "product_info" }

func (*ProductInfo) Schema() map[string]any {
	return llm.Object(map[string]any{
		"search_query":       llm.Nullable(llm.String("the user's search query")),
		"found_products":     llm.Array(productSchema(), "relevant products found"),
		"suggested_response": llm.Nullable(llm.String("a suggested response to the user")),
		"info_needed":        requestSchema(),
	}, "found_products")
}

func (p *ProductInfo) Validate() error { return validateProducts(p.FoundProducts) }

type Store struct {
	Name        string   `json:"name"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	PhoneNumber *string  `json:"phone_number,omitempty"`
	WebsiteURL  *string  `json:"website_url,omitempty"`
}

func storeSchema() map[string]any {
	return llm.Object(map[string]any{
		"name":         llm.String("store name"),
		"longitude":    llm.Number("longitude"),
		"latitude":     llm.Number("latitude"),
		"phone_number": llm.String("phone number"),
		"website_url":  llm.String("store page URL"),
	}, "name")
}

func validateStores(ss []Store) error {
	for i, s := range ss {
		if s.Name == "" {
			return fmt.Errorf("store %d: name is required", i)
		}
		if s.Latitude != nil && (*s.Latitude < -90 || *s.Latitude > 90) {
			return fmt.Errorf("store %d: latitude %v out of range", i, *s.Latitude)
		}
		if s.Longitude != nil && (*s.Longitude < -180 || *s.Longitude > 180) {
			return fmt.Errorf("store %d: longitude %v out of range", i, *s.Longitude)
		}
	}
	return nil
}

// StoreList is the store search result.
type StoreList struct {
	FoundStores []Store `json:"found_stores"`
	pending
}

func (*StoreList) Kind() string { return "store_list" }

func (*StoreList) Schema() map[string]any {
	return llm.Object(map[string]any{
		"found_stores": llm.Array(storeSchema(), "relevant stores found"),
		"info_needed":  requestSchema(),
	}, "found_stores")
}

func (s *StoreList) Validate() error { return validateStores(s.FoundStores) }

// StoreInfo answers a question about specific stores.
type StoreInfo struct {
	SearchQuery       *string `json:"search_query"`
	FoundStores       []Store `json:"found_stores"`
	SuggestedResponse *string `json:"suggested_response"`
	pending
}

func (*StoreInfo) Kind() string { return "store_info" }

func (*StoreInfo) Schema() map[string]any {
	return llm.Object(map[string]any{
		"search_query":       llm.Nullable(llm.String("the user's search query")),
		"found_stores":       llm.Array(storeSchema(), "relevant stores found"),
		"suggested_response": llm.Nullable(llm.String("a suggested response to the user")),
		"info_needed":        requestSchema(),
	}, "found_stores")
}

func (s *StoreInfo) Validate() error { return validateStores(s.FoundStores) }

// Response is a worker's answer to a request addressed to it.
type Response struct {
	ResponseData map[string]any `json:"response_data"`
	noRequest
}

func (*Response) Kind() string { return "agent_response" }

func (*Response) Schema() map[string]any {
	return llm.Object(map[string]any{
		"response_data": map[string]any{
			"type":        "object",
			"description": "the information requested, structured with descriptive keys",
		},
	}, "response_data")
}

func (r *Response) Validate() error {
	if r.ResponseData == nil {
		return errors.New("response_data is required")
	}
	return nil
}

// FinalAnswer is the user-facing reply.
type FinalAnswer struct {
	Message     string  `json:"message"`
	OutputImage *string `json:"output_image"`
	noRequest
}

func (*FinalAnswer) Kind() string { return "final_answer" }

func (*FinalAnswer) Schema() map[string]any {
	return llm.Object(map[string]any{
		"message":      llm.String("the reply to the customer"),
		"output_image": llm.Nullable(llm.String("URL of one product image from the conversation worth showing, or null")),
	}, "message")
}

func (f *FinalAnswer) Validate() error {
	if f.Message == "" {
		return errors.New("message is required")
	}
	if f.OutputImage != nil && *f.OutputImage != "" {
		if err := validateURL(*f.OutputImage); err != nil {
			return fmt.Errorf("output_image: %w", err)
		}
	}
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", s)
	}
	return nil
}
