package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// EnqueueBatch submits a batch to the session queue. The server validates the
// graph and answers with the assigned batch ID and item IDs.
func (c *Client) EnqueueBatch(ctx context.Context, req *schema.EnqueueRequest) (*schema.EnqueueResult, error) {
	path := fmt.Sprintf("/v1/queue/%s/enqueue_batch", url.PathEscape(c.queueID))
	var out schema.EnqueueResult
	if err := c.do(ctx, "POST", path, nil, req, &out); err != nil {
		return nil, err
	}
	if out.QueueID == "" {
		out.QueueID = c.queueID
	}
	return &out, nil
}

// QueueItem fetches one queue item by ID. Terminal items carry the executed
// session with its results.
func (c *Client) QueueItem(ctx context.Context, itemID int64) (*schema.QueueItem, error) {
	path := fmt.Sprintf("/v1/queue/%s/i/%d", url.PathEscape(c.queueID), itemID)
	var out schema.QueueItem
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelQueueItem asks the server to cancel one queue item. Canceling an
// already-terminal item is a server-side no-op and returns the item as-is.
func (c *Client) CancelQueueItem(ctx context.Context, itemID int64) (*schema.QueueItem, error) {
	path := fmt.Sprintf("/v1/queue/%s/i/%d/cancel", url.PathEscape(c.queueID), itemID)
	var out schema.QueueItem
	if err := c.do(ctx, "PUT", path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueueStatus reports the queue's population counters and processor state.
func (c *Client) QueueStatus(ctx context.Context) (*schema.QueueStatus, error) {
	path := fmt.Sprintf("/v1/queue/%s/status", url.PathEscape(c.queueID))
	var out schema.QueueStatus
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListQueueItemsOptions narrows a queue listing.
type ListQueueItemsOptions struct {
	Limit  int
	Status schema.ItemStatus
	Cursor int64
}

// QueueItemList is one page of queue items.
type QueueItemList struct {
	Items   []schema.QueueItem `json:"items"`
	HasMore bool               `json:"has_more"`
}

// ListQueueItems pages through the queue, newest first.
func (c *Client) ListQueueItems(ctx context.Context, opts ListQueueItemsOptions) (*QueueItemList, error) {
	path := fmt.Sprintf("/v1/queue/%s/list", url.PathEscape(c.queueID))

	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Status != "" {
		query.Set("status", string(opts.Status))
	}
	if opts.Cursor > 0 {
		query.Set("cursor", strconv.FormatInt(opts.Cursor, 10))
	}

	var out QueueItemList
	if err := c.get(ctx, path, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
