package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateBatch creates an empty batch.
func (c *Client) CreateBatch(req CreateBatchRequest) (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.call("CreateBatch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListBatches lists every batch.
func (c *Client) ListBatches() (*BatchListResponse, error) {
	var resp BatchListResponse
	if err := c.call("ListBatches", Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchStatus returns the full snapshot of a batch.
func (c *Client) BatchStatus(req BatchRequest) (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.call("BatchStatus", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteBatch removes an idle batch.
func (c *Client) DeleteBatch(req DeleteBatchRequest) (*Ack, error) {
	var resp Ack
	if err := c.call("DeleteBatch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stage adds videos to the staged zone.
func (c *Client) Stage(req StageRequest) (*StageResponse, error) {
	var resp StageResponse
	if err := c.call("Stage", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Move transfers tasks between zones.
func (c *Client) Move(req MoveRequest) (*Ack, error) {
	var resp Ack
	if err := c.call("Move", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reorder replaces the order of a zone.
func (c *Client) Reorder(req ReorderRequest) (*Ack, error) {
	var resp Ack
	if err := c.call("Reorder", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Prioritize moves a queued task to the front of the waiting tasks.
func (c *Client) Prioritize(req TaskRequest) (*Ack, error) {
	var resp Ack
	if err := c.call("Prioritize", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rename edits a task display name.
func (c *Client) Rename(req RenameRequest) (*Ack, error) {
	var resp Ack
	if err := c.call("Rename", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Trash moves a task to the trash.
func (c *Client) Trash(req TrashRequest) (*TrashResponse, error) {
	var resp TrashResponse
	if err := c.call("Trash", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Restore takes a task out of the trash.
func (c *Client) Restore(req RestoreRequest) (*Ack, error) {
	var resp Ack
	if err := c.call("Restore", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PermanentlyDelete removes a trashed task and its output.
func (c *Client) PermanentlyDelete(req TaskRequest) (*Ack, error) {
	var resp Ack
	if err := c.call("PermanentlyDelete", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start starts processing the queued zone.
func (c *Client) Start(req StartRequest) (*Ack, error) {
	var resp Ack
	if err := c.call("Start", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pause stops the batch after the running tasks.
func (c *Client) Pause(req BatchRequest) (*Ack, error) {
	var resp Ack
	if err := c.call("Pause", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetWorkers changes the worker limit of an idle batch.
func (c *Client) SetWorkers(req WorkersRequest) (*WorkersResponse, error) {
	var resp WorkersResponse
	if err := c.call("SetWorkers", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel stops a queued or running task.
func (c *Client) Cancel(req CancelRequest) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.call("Cancel", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Retry requeues a failed or stopped task.
func (c *Client) Retry(req TaskRequest) (*RetryResponse, error) {
	var resp RetryResponse
	if err := c.call("Retry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListImages lists the slide images of a completed task.
func (c *Client) ListImages(req ImagesRequest) (*ImagesResponse, error) {
	var resp ImagesResponse
	if err := c.call("ListImages", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TrashImages moves slide images to the task trash.
func (c *Client) TrashImages(req ImagesRequest) (*ImagesResponse, error) {
	var resp ImagesResponse
	if err := c.call("TrashImages", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RestoreImages moves slide images back from the task trash.
func (c *Client) RestoreImages(req ImagesRequest) (*ImagesResponse, error) {
	var resp ImagesResponse
	if err := c.call("RestoreImages", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Export packages completed tasks.
func (c *Client) Export(req ExportRequest) (*ExportResponse, error) {
	var resp ExportResponse
	if err := c.call("Export", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events polls the event history of a batch.
func (c *Client) Events(req EventsRequest) (*EventsResponse, error) {
	var resp EventsResponse
	if err := c.call("Events", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log events from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*NotificationResponse, error) {
	var resp NotificationResponse
	if err := c.call("TestNotification", Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
