package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mtzanidakis/counterman/internal/llm"
)

// CatalogTools returns the tools backed by the catalog, pricing and store API.
func (c *Client) CatalogTools() []llm.Tool {
	return []llm.Tool{
		c.newTool("search_klevu_products",
			"Search products with the Klevu engine. Returns part id and part_number for each product.",
			llm.Object(map[string]any{
				"term":      llm.String("search term"),
				"page_size": llm.Integer("results per page, default 5"),
				"page":      llm.Integer("page number, default 1"),
			}, "term"),
			c.searchKlevu),
		c.newTool("search_azure_products",
			"Search products with the Azure engine. Returns product_name, description, brand, part_number, "+
				"manufacturer_id, heritage_link, image_url and relevance_score.",
			llm.Object(map[string]any{
				"term":  llm.String("search term"),
				"limit": llm.Integer("maximum results, default 3"),
			}, "term"),
			c.searchAzure),
		c.newTool("get_product_details",
			"Get information about one product. It does NOT include pricing or availability. Returns product_name, "+
				"description, brand, part_number, manufacturer_id, heritage_link and image_url.",
			llm.Object(map[string]any{"part_number": llm.String("part number")}, "part_number"),
			c.productDetails),
		c.newTool("get_pricing",
			"Get pricing for item codes. Returns item_code, description, price, available_quantity, in_stock and unit.",
			llm.Object(map[string]any{"item_codes": llm.Array(llm.String("item code"), "item codes")}, "item_codes"),
			c.pricing),
		c.newTool("get_availability",
			"Get availability for item codes. Returns each item code with its in_stock flag and available quantity.",
			llm.Object(map[string]any{"item_codes": llm.Array(llm.String("item code"), "item codes")}, "item_codes"),
			c.availability),
		c.newTool("search_store_locations",
			"Search stores near a location. Returns id, name, location, address, contact and hours for each store.",
			llm.Object(map[string]any{
				"latitude":  llm.Number("latitude"),
				"longitude": llm.Number("longitude"),
				"radius":    llm.Integer("radius in miles, default 50"),
				"page_size": llm.Integer("results per page, default 10"),
				"page":      llm.Integer("page number, default 1"),
			}, "latitude", "longitude"),
			c.searchStores),
		c.newTool("get_store_details",
			"Get the details of a store. Returns id, name, location (latitude, longitude), address and contact.",
			llm.Object(map[string]any{"store_id": llm.String("store id")}, "store_id"),
			c.storeDetails),
		c.newTool("get_store_hours",
			"Get the opening hours of a store.",
			llm.Object(map[string]any{"store_id": llm.String("store id")}, "store_id"),
			c.storeHours),
	}
}

func (c *Client) searchKlevu(ctx context.Context, in json.RawMessage) (any, error) {
	args := struct {
		Term     string `json:"term"`
		PageSize int    `json:"page_size"`
		Page     int    `json:"page"`
	}{PageSize: 5, Page: 1}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	if args.Term == "" {
		return nil, errors.New("term is required")
	}
	u, err := c.catalogURL("/api/search", url.Values{
		"term":      {args.Term},
		"page_size": {strconv.Itoa(args.PageSize)},
		"page":      {strconv.Itoa(args.Page)},
	})
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) searchAzure(ctx context.Context, in json.RawMessage) (any, error) {
	args := struct {
		Term  string `json:"term"`
		Limit int    `json:"limit"`
	}{Limit: 3}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	if args.Term == "" {
		return nil, errors.New("term is required")
	}
	u, err := c.catalogURL("/api/products/search", url.Values{
		"query": {args.Term},
		"limit": {strconv.Itoa(args.Limit)},
	})
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) productDetails(ctx context.Context, in json.RawMessage) (any, error) {
	var args struct {
		PartNumber string `json:"part_number"`
	}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	if args.PartNumber == "" {
		return nil, errors.New("part_number is required")
	}
	u, err := c.catalogURL("/api/products/"+url.PathEscape(strings.ToUpper(args.PartNumber)), nil)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type PriceItem struct {
	ItemCode          string  `json:"item_code"`
	Description       string  `json:"description,omitempty"`
	Price             float64 `json:"price"`
	AvailableQuantity int     `json:"available_quantity"`
	InStock           bool    `json:"in_stock"`
	Unit              string  `json:"unit,omitempty"`
}

func (c *Client) fetchPricing(ctx context.Context, codes []string) ([]PriceItem, error) {
	if len(codes) == 0 {
		return nil, errors.New("item_codes is required")
	}
	type item struct {
		ItemCode string `json:"item_code"`
		Unit     string `json:"unit"`
	}
	body := struct {
		Items []item `json:"items"`
	}{}
	for _, code := range codes {
		body.Items = append(body.Items, item{ItemCode: strings.ToUpper(code), Unit: "EA"})
	}

	u, err := c.catalogURL("/api/pricing", nil)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.postJSON(ctx, u, body, &raw); err != nil {
		return nil, err
	}

	// The API answers with either a bare list or {"items": [...]}.
	var items []PriceItem
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Items []PriceItem `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode pricing: %w", err)
	}
	return wrapped.Items, nil
}

func (c *Client) pricing(ctx context.Context, in json.RawMessage) (any, error) {
	var args struct {
		ItemCodes stringList `json:"item_codes"`
	}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	return c.fetchPricing(ctx, args.ItemCodes)
}

type Availability struct {
	ItemCode          string `json:"item_code"`
	AvailableQuantity int    `json:"available_quantity"`
	InStock           bool   `json:"in_stock"`
}

// availability is derived from the pricing endpoint.
func (c *Client) availability(ctx context.Context, in json.RawMessage) (any, error) {
	var args struct {
		ItemCodes stringList `json:"item_codes"`
	}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	items, err := c.fetchPricing(ctx, args.ItemCodes)
	if err != nil {
		return nil, err
	}
	out := struct {
		Items []Availability `json:"items"`
	}{Items: make([]Availability, 0, len(items))}
	for _, it := range items {
		out.Items = append(out.Items, Availability{
			ItemCode:          it.ItemCode,
			AvailableQuantity: it.AvailableQuantity,
			InStock:           it.InStock,
		})
	}
	return out, nil
}

type storeSearchArgs struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    int     `json:"radius"`
	PageSize  int     `json:"page_size"`
	Page      int     `json:"page"`
}

func (c *Client) fetchStores(ctx context.Context, a storeSearchArgs, out any) error {
	u, err := c.catalogURL("/api/stores/search", url.Values{
		"latitude":  {strconv.FormatFloat(a.Latitude, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(a.Longitude, 'f', -1, 64)},
		"radius":    {strconv.Itoa(a.Radius)},
		"page_size": {strconv.Itoa(a.PageSize)},
		"page":      {strconv.Itoa(a.Page)},
	})
	if err != nil {
		return err
	}
	return c.getJSON(ctx, u, out)
}

func (c *Client) searchStores(ctx context.Context, in json.RawMessage) (any, error) {
	args := storeSearchArgs{Radius: 50, PageSize: 10, Page: 1}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.fetchStores(ctx, args, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type storeDetails struct {
	ID       string `json:"id"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

func (c *Client) storeDetailsURL(id string) (string, error) {
	if id == "" {
		return "", errors.New("store_id is required")
	}
	return c.catalogURL("/api/stores/"+url.PathEscape(strings.ToUpper(id)), nil)
}

func (c *Client) storeDetails(ctx context.Context, in json.RawMessage) (any, error) {
	var args struct {
		StoreID string `json:"store_id"`
	}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	u, err := c.storeDetailsURL(args.StoreID)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// storeHours looks the store up, then searches at its exact location with a
// one-mile radius: the details endpoint carries no hours.
func (c *Client) storeHours(ctx context.Context, in json.RawMessage) (any, error) {
	var args struct {
		StoreID string `json:"store_id"`
	}
	if err := decodeArgs(in, &args); err != nil {
		return nil, err
	}
	u, err := c.storeDetailsURL(args.StoreID)
	if err != nil {
		return nil, err
	}
	var det storeDetails
	if err := c.getJSON(ctx, u, &det); err != nil {
		return nil, err
	}

	var found struct {
		Stores []struct {
			Hours json.RawMessage `json:"hours"`
		} `json:"stores"`
	}
	search := storeSearchArgs{Latitude: det.Location.Latitude, Longitude: det.Location.Longitude, Radius: 1, PageSize: 1, Page: 1}
	if err := c.fetchStores(ctx, search, &found); err != nil {
		return nil, err
	}
	if len(found.Stores) == 0 {
		return nil, fmt.Errorf("no store found at the location of %s", args.StoreID)
	}
	return map[string]json.RawMessage{"hours": found.Stores[0].Hours}, nil
}
