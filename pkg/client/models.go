package client

import (
	"context"
	"net/url"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// ListModelsOptions narrows an inventory listing. Zero values list everything.
type ListModelsOptions struct {
	Base schema.BaseModel
	Type schema.ModelType
	Name string
}

// ListModels fetches the server's model inventory.
func (c *Client) ListModels(ctx context.Context, opts ListModelsOptions) ([]schema.ModelRecord, error) {
	query := url.Values{}
	if opts.Base != "" {
		query.Set("base_models", string(opts.Base))
	}
	if opts.Type != "" {
		query.Set("model_type", string(opts.Type))
	}
	if opts.Name != "" {
		query.Set("model_name", opts.Name)
	}

	var out schema.ModelList
	if err := c.get(ctx, "/v2/models/", query, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}
