package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// GenerateContractTask is scheduled after every successful terms acceptance.
	GenerateContractTask = "contract:generate"
)

// ContractPayload tells the worker which acceptance to render.
type ContractPayload struct {
	ApplicationID string `json:"application_id"`
	AcceptanceID  string `json:"acceptance_id"`
}

// NewContractTask builds the asynq task for payload.
func NewContractTask(payload ContractPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	// one task per acceptance; a duplicate enqueue is rejected by asynq
	return asynq.NewTask(GenerateContractTask, data, asynq.TaskID("contract:"+payload.AcceptanceID), asynq.MaxRetry(5)), nil
}

// ParseContractPayload decodes a task payload.
func ParseContractPayload(data []byte) (ContractPayload, error) {
	var p ContractPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	if p.ApplicationID == "" || p.AcceptanceID == "" {
		return p, fmt.Errorf("decode payload: missing ids")
	}
	return p, nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client enqueues contract tasks on Redis through asynq.
type Client struct {
	client enqueuer
}

func NewClient(client *asynq.Client) *Client {
	return &Client{client: client}
}

// EnqueueContractPDF enqueues a contract generation job.
func (c *Client) EnqueueContractPDF(ctx context.Context, payload ContractPayload) error {
	task, err := NewContractTask(payload)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue contract task: %w", err)
	}
	return nil
}
