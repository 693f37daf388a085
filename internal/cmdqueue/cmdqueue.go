// Package cmdqueue carries todo commands from the API to the read-model
// updater over an Azure storage queue. Each message is one JSON encoded
// contract.Command.
package cmdqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"livetodo/internal/contract"
)

// NewClient opens the named queue with the retry policy shared by every service.
func NewClient(connStr, name string) (*azqueue.QueueClient, error) {
	opts := &azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 30 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	return azqueue.NewQueueClientFromConnectionString(connStr, name, opts)
}

type enqueuer interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Send enqueues cmds one message each, in order, stopping at the first failure.
func Send(ctx context.Context, q enqueuer, cmds []contract.Command) error {
	for i := range cmds {
		data, err := json.Marshal(cmds[i])
		if err != nil {
			return err
		}
		if _, err := q.EnqueueMessage(ctx, string(data), nil); err != nil {
			return fmt.Errorf("enqueue %s %s: %w", cmds[i].Type, cmds[i].IdempotencyKey, err)
		}
	}
	return nil
}

// Decode parses one message body.
func Decode(payload string) (contract.Command, error) {
	var cmd contract.Command
	err := json.Unmarshal([]byte(payload), &cmd)
	return cmd, err
}

type propertyGetter interface {
	GetProperties(ctx context.Context, o *azqueue.GetQueuePropertiesOptions) (azqueue.GetQueuePropertiesResponse, error)
}

// Depth reports the approximate number of messages waiting in q.
func Depth(ctx context.Context, q propertyGetter) (int32, error) {
	resp, err := q.GetProperties(ctx, nil)
	if err != nil {
		return 0, err
	}
	if resp.ApproximateMessagesCount == nil {
		return 0, nil
	}
	return *resp.ApproximateMessagesCount, nil
}
