package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// ListBoards fetches all boards. With includeUncategorized, a synthetic
// "none" board is prepended so callers can present the full destination set.
func (c *Client) ListBoards(ctx context.Context, includeUncategorized bool) ([]schema.Board, error) {
	query := url.Values{}
	query.Set("all", "true")

	var out []schema.Board
	if err := c.get(ctx, "/v1/boards/", query, &out); err != nil {
		return nil, err
	}

	if includeUncategorized {
		out = append([]schema.Board{{BoardID: schema.BoardNone, BoardName: "Uncategorized"}}, out...)
	}
	return out, nil
}

// CreateBoard creates a named board and returns it.
func (c *Client) CreateBoard(ctx context.Context, name string) (*schema.Board, error) {
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "board name must not be empty")
	}

	// The server takes the name as a query parameter, not a body.
	query := url.Values{}
	query.Set("board_name", name)

	var out schema.Board
	if err := c.do(ctx, "POST", "/v1/boards/", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BoardImageNames lists the image names stored on one board. Pass
// schema.BoardNone for uncategorized images.
func (c *Client) BoardImageNames(ctx context.Context, boardID string) ([]string, error) {
	boardID = schema.NormalizeBoardID(boardID)
	path := fmt.Sprintf("/v1/boards/%s/image_names", url.PathEscape(boardID))

	var out []string
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
