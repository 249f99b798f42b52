package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mtzanidakis/counterman/internal/llm"
)

// SiteTools returns the tools backed by the parts site.
func (c *Client) SiteTools() []llm.Tool {
	return []llm.Tool{
		c.newTool("use_search_feature",
			"Use the site search to get detailed information about a specific part or model. "+
				"Input: the model id, part id, model name, part name or a short part description (3 words or less for non-id terms). "+
				"The output page may link to other pages you can fetch with request_page.",
			llm.Object(map[string]any{"search_term": llm.String("model id, part id or short description")}, "search_term"),
			c.useSearchFeature),
		c.newTool("check_part_compatibility",
			"Check whether a part fits a model. Input: model_id|part_id. "+
				"Only run this when the user gave both numbers. If you get an error, run it again with the model and part numbers swapped.",
			llm.Object(map[string]any{"model_and_part": llm.String("model_id|part_id")}, "model_and_part"),
			c.checkPartCompatibility),
		c.newTool("search_instant_repairman_models",
			"List common problems for a model number. The output contains the model master id and the problem ids.",
			llm.Object(map[string]any{"model_number": llm.String("appliance model number")}, "model_number"),
			c.searchRepairmanModels),
		c.newTool("get_instant_repairman_parts",
			"List parts that fix a problem on a model. Input: model_master_id|problem_id, both taken from the output of "+
				"search_instant_repairman_models. The model master id usually differs from the user's model number.",
			llm.Object(map[string]any{"model_problem_id": llm.String("model_master_id|problem_id")}, "model_problem_id"),
			c.getRepairmanParts),
		c.newTool("search_blog_posts",
			"Search repair blog posts. Keep the search term simple, e.g. 'dishwasher door repair'. "+
				"Limit searches to dishwasher or refrigerator repair.",
			llm.Object(map[string]any{"search_term": llm.String("blog search term")}, "search_term"),
			c.searchBlogPosts),
		c.newTool("general_dishwasher_repair_tips",
			"Get the general dishwasher repair guide. It may not be specific to the user's problem.",
			llm.Object(map[string]any{}),
			c.repairGuide("Dishwasher")),
		c.newTool("general_refrigerator_repair_tips",
			"Get the general refrigerator repair guide. It may not be specific to the user's problem.",
			llm.Object(map[string]any{}),
			c.repairGuide("Refrigerator")),
		c.newTool("request_page",
			"Fetch a page of the parts site by URL. Only use URLs found in the output of another tool, "+
				"never other websites, and prefer the other tools first.",
			llm.Object(map[string]any{"url": llm.String("absolute URL on the parts site")}, "url"),
			c.requestPage),
	}
}

func (c *Client) useSearchFeature(ctx context.Context, in json.RawMessage) (any, error) {
	var args struct {
		SearchTerm string `json:"search_term"`
	}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.SearchTerm) == "" {
		return nil, errors.New("search_term is required")
	}
	return c.getPage(ctx, c.siteURL("/api/search/", url.Values{"searchterm": {args.SearchTerm}}))
}

func (c *Client) checkPartCompatibility(ctx context.Context, in json.RawMessage) (any, error) {
	var args struct {
		ModelAndPart string `json:"model_and_part"`
	}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	model, part, err := splitPair(args.ModelAndPart, "model_id|part_id")
	if err != nil {
		return nil, err
	}
	part = normalizePartID(part)

	var resp struct {
		Result json.RawMessage `json:"compatabilityCheckResult"`
	}
	u := c.siteURL("/api/Part/PartCompatibilityCheck", url.Values{
		"modelnumber":     {model},
		"inventoryid":     {part},
		"partdescription": {"undefined"},
	})
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("check compatibility of %s with %s: %w", part, model, err)
	}
	if len(resp.Result) == 0 {
		return nil, fmt.Errorf("no compatibility result for part %s on model %s", part, model)
	}
	return string(resp.Result), nil
}

// normalizePartID strips the site's PS and manufacturer W prefixes.
func normalizePartID(id string) string {
	switch {
	case len(id) > 2 && strings.HasPrefix(id, "PS"):
		return id[2:]
	case len(id) > 1 && strings.HasPrefix(id, "W"):
		return id[1:]
	}
	return id
}

func (c *Client) searchRepairmanModels(ctx context.Context, in json.RawMessage) (any, error) {
	var args struct {
		ModelNumber string `json:"model_number"`
	}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	if args.ModelNumber == "" {
		return nil, errors.New("model_number is required")
	}
	return c.getPage(ctx, c.siteURL("/instant-repairman/", url.Values{
		"handler":  {"SearchModels"},
		"ModelNum": {args.ModelNumber},
	}))
}

func (c *Client) getRepairmanParts(ctx context.Context, in json.RawMessage) (any, error) {
	var args struct {
		ModelProblemID string `json:"model_problem_id"`
	}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	model, problem, err := splitPair(args.ModelProblemID, "model_master_id|problem_id")
	if err != nil {
		return nil, err
	}
	return c.getPage(ctx, c.siteURL("/instant-repairman/", url.Values{
		"handler":       {"GetpartsList"},
		"ModelMasterID": {model},
		"ProblemID":     {problem},
	}))
}

func (c *Client) searchBlogPosts(ctx context.Context, in json.RawMessage) (any, error) {
	var args struct {
		SearchTerm string `json:"search_term"`
	}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	if args.SearchTerm == "" {
		return nil, errors.New("search_term is required")
	}
	return c.getPage(ctx, c.siteURL("/content/blog/search/"+args.SearchTerm+"/", nil))
}

func (c *Client) repairGuide(appliance string) handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		return c.getPage(ctx, c.siteURL("/Repair/"+appliance+"/", nil))
	}
}

func (c *Client) requestPage(ctx context.Context, in json.RawMessage) (any, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	u, err := url.Parse(args.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid url %q", args.URL)
	}
	if !c.onSite(u) {
		return nil, fmt.Errorf("refusing to fetch %s: only %s pages are allowed", u.Host, c.site.Host)
	}
	return c.getPage(ctx, u.String())
}

func (c *Client) onSite(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	site := strings.ToLower(c.site.Hostname())
	return host == site || strings.TrimPrefix(site, "www.") == host
}

func splitPair(s, format string) (string, string, error) {
	a, b, ok := strings.Cut(s, "|")
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if !ok || a == "" || b == "" {
		return "", "", fmt.Errorf("expected input formatted as %s, got %q", format, s)
	}
	return a, b, nil
}
