package agents

import (
	"fmt"
	"slices"

	"github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/llm"
	"github.com/mtzanidakis/counterman/internal/metrics"
	"github.com/mtzanidakis/counterman/internal/supervisor"
	"github.com/mtzanidakis/counterman/internal/tools"
)

// Profile is one deployment: its workers, their allow-lists and the
// supervisor's routing instructions.
type Profile struct {
	Name         string
	Policy       supervisor.Policy
	Instructions string
	HumanSystem  string
	roles        []roleSpec
}

// roleSpec names the tools of a role; they are resolved against a tool set
// when the profile is built.
type roleSpec struct {
	Role
	tools    []string
	directed []string
}

type BuildConfig struct {
	HistoryWindow int
	MaxToolRounds int
	Metrics       *metrics.Collector
}

// ByName returns the profile called name.
func ByName(name string) (Profile, error) {
	switch name {
	case "", "parts":
		return Parts(), nil
	case "pool":
		return Pool(), nil
	}
	return Profile{}, fmt.Errorf("unknown profile %q", name)
}

// WithAllow returns p with its allow-lists overridden.
func (p Profile) WithAllow(overrides map[string][]string) (Profile, error) {
	if len(overrides) == 0 {
		return p, nil
	}
	policy, err := p.Policy.WithAllow(overrides)
	if err != nil {
		return Profile{}, err
	}
	p.Policy = policy
	return p, nil
}

// Build creates every node of the profile, the supervisor included.
func (p Profile) Build(model llm.Model, ts *tools.Set, cfg BuildConfig) (map[conversation.AgentID]conversation.Node, error) {
	router, err := supervisor.New(model, supervisor.Config{
		Policy:        p.Policy,
		Instructions:  p.Instructions,
		HistoryWindow: cfg.HistoryWindow,
		Metrics:       cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	opts := []Option{WithMetrics(cfg.Metrics)}
	if cfg.MaxToolRounds > 0 {
		opts = append(opts, WithMaxToolRounds(cfg.MaxToolRounds))
	}

	nodes := map[conversation.AgentID]conversation.Node{
		conversation.Supervisor:       router,
		conversation.HumanInteraction: NewHuman(model, p.HumanSystem, opts...),
	}
	for _, rs := range p.roles {
		role := rs.Role
		if role.Tools, err = ts.Pick(rs.tools...); err != nil {
			return nil, fmt.Errorf("role %s: %w", role.ID, err)
		}
		if rs.directed != nil {
			if role.DirectedTools, err = ts.Pick(rs.directed...); err != nil {
				return nil, fmt.Errorf("role %s: %w", role.ID, err)
			}
		}
		nodes[role.ID] = NewWorker(model, role, opts...)
	}

	for _, m := range p.Policy.Members {
		if _, ok := nodes[m.ID]; !ok {
			return nil, fmt.Errorf("profile %s: no worker for member %s", p.Name, m.ID)
		}
	}
	return nodes, nil
}

// Roles lists the worker ids of the profile, human interaction excluded.
func (p Profile) Roles() []conversation.AgentID {
	ids := make([]conversation.AgentID, 0, len(p.roles))
	for _, rs := range p.roles {
		ids = append(ids, rs.ID)
	}
	return ids
}

var siteTools = []string{
	"use_search_feature",
	"check_part_compatibility",
	"search_instant_repairman_models",
	"get_instant_repairman_parts",
	"search_blog_posts",
	"general_dishwasher_repair_tips",
	"general_refrigerator_repair_tips",
	"request_page",
}

// Parts is the appliance-parts deployment.
func Parts() Profile {
	return Profile{
		Name:         "parts",
		Instructions: partsRouting,
		HumanSystem:  partsHuman,
		Policy: supervisor.Policy{
			Members: []supervisor.Member{
				{ID: conversation.ValidationAgent, Description: "Validates part/model numbers and checks compatibility. There is no need to validate data you got from other agents; only validate individual parts and models if the user wants to."},
				{ID: conversation.RepairAgent, Description: "Provides repair solutions and part recommendations. Use this agent when the user mentions a problem and you need to provide a solution."},
				{ID: conversation.DataAgent, Description: "Fetches product data and specifications from the website.", RequestOnly: true},
				{ID: conversation.SummaryAgent, Description: "Summarizes the conversation for other agents.", RequestOnly: true},
				{ID: conversation.BlogAgent, Description: "Searches blog posts for general information and tips about appliance maintenance, common issues and best practices for dishwasher and refrigerator repair."},
				{ID: conversation.HumanInteraction, Description: "Communicates directly with the user (MUST be the final step). Use this agent if you need more information from the user not provided by the other agents. It is better to ask the user for information than to assume which action to take."},
			},
			Allow: map[conversation.AgentID][]conversation.AgentID{
				conversation.HumanInteraction: {},
				conversation.ValidationAgent:  {conversation.DataAgent, conversation.SummaryAgent, conversation.HumanInteraction},
				conversation.RepairAgent:      {conversation.ValidationAgent, conversation.DataAgent, conversation.SummaryAgent, conversation.HumanInteraction},
				conversation.DataAgent:        {conversation.HumanInteraction},
				conversation.SummaryAgent:     {},
				conversation.BlogAgent:        {conversation.HumanInteraction},
			},
		},
		roles: []roleSpec{
			{
				Role:  Role{ID: conversation.RepairAgent, System: repairSystem, Analyze: repairAnalyze, Output: func() Output { return &RepairInfo{} }},
				tools: []string{},
			},
			{
				Role:  Role{ID: conversation.ValidationAgent, System: validationSystem, Analyze: validationAnalyze, Output: func() Output { return &ValidationInfo{} }},
				tools: []string{"use_search_feature", "check_part_compatibility", "request_page"},
			},
			{
				Role:  Role{ID: conversation.DataAgent, System: dataSystem},
				tools: slices.Clone(siteTools),
			},
			{
				Role:  Role{ID: conversation.SummaryAgent, System: summarySystem, Analyze: summaryAnalyze, Output: func() Output { return &MessageSummary{} }},
				tools: []string{},
			},
			{
				Role:  Role{ID: conversation.BlogAgent, System: blogSystem, Analyze: blogAnalyze, Output: func() Output { return &BlogInfo{} }},
				tools: []string{"search_blog_posts"},
			},
		},
	}
}

// Pool is the pool-equipment deployment.
func Pool() Profile {
	return Profile{
		Name:         "pool",
		Instructions: poolRouting,
		HumanSystem:  poolHuman,
		Policy: supervisor.Policy{
			Members: []supervisor.Member{
				{ID: conversation.ProductSearchAgent, Description: "Searches the product catalog.", RequestOnly: true},
				{ID: conversation.ProductInfoAgent, Description: "Answers questions about specific products: details, pricing and availability."},
				{ID: conversation.StoreSearchAgent, Description: "Searches store locations near a point.", RequestOnly: true},
				{ID: conversation.StoreInfoAgent, Description: "Answers questions about stores: locations, details and opening hours."},
				{ID: conversation.HumanInteraction, Description: "Communicates directly with the user (MUST be the final step). Use this agent if you need more information from the user."},
			},
			Allow: map[conversation.AgentID][]conversation.AgentID{
				conversation.HumanInteraction:   {},
				conversation.ProductSearchAgent: {conversation.HumanInteraction},
				conversation.ProductInfoAgent:   {conversation.ProductSearchAgent, conversation.StoreSearchAgent, conversation.StoreInfoAgent, conversation.HumanInteraction},
				conversation.StoreSearchAgent:   {conversation.HumanInteraction},
				conversation.StoreInfoAgent:     {conversation.StoreSearchAgent, conversation.ProductSearchAgent, conversation.ProductInfoAgent, conversation.HumanInteraction},
			},
		},
		roles: []roleSpec{
			{
				Role:  Role{ID: conversation.ProductSearchAgent, System: productSearchSystem, Analyze: searchAnalyze, Output: func() Output { return &ProductList{} }},
				tools: []string{"search_klevu_products", "search_azure_products"},
			},
			{
				Role:     Role{ID: conversation.ProductInfoAgent, System: productInfoSystem, Analyze: productInfoAnalyze, Output: func() Output { return &ProductInfo{} }},
				tools:    []string{"search_klevu_products", "search_azure_products"},
				directed: []string{"get_product_details", "get_pricing", "get_availability"},
			},
			{
				Role:  Role{ID: conversation.StoreSearchAgent, System: storeSearchSystem, Analyze: searchAnalyze, Output: func() Output { return &StoreList{} }},
				tools: []string{"search_store_locations"},
			},
			{
				Role:  Role{ID: conversation.StoreInfoAgent, System: storeInfoSystem, Analyze: storeInfoAnalyze, Output: func() Output { return &StoreInfo{} }},
				tools: []string{"search_store_locations", "get_store_details", "get_store_hours"},
			},
		},
	}
}
