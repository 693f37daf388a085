// Package tables holds the Azure Table representation of the todos read model
// shared by the services that read or write it.
package tables

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"livetodo/internal/consts"
	"livetodo/internal/contract"
)

const (
	EdmBoolean = "Edm.Boolean"
	EdmInt64   = "Edm.Int64"
)

// TodoEntity is a todo row. Timestamps are per field so concurrent update and
// mark commands never overwrite each other.
type TodoEntity struct {
	PartitionKey           string `json:"PartitionKey"`
	RowKey                 string `json:"RowKey"`
	Text                   string `json:"Text"`
	Completed              bool   `json:"Completed"`
	CompletedType          string `json:"Completed@odata.type,omitempty"`
	CreationTime           int64  `json:"CreationTime,string"`
	CreationTimeType       string `json:"CreationTime@odata.type,omitempty"`
	TextTimestamp          int64  `json:"TextTimestamp,string"`
	TextTimestampType      string `json:"TextTimestamp@odata.type,omitempty"`
	CompletedTimestamp     int64  `json:"CompletedTimestamp,string"`
	CompletedTimestampType string `json:"CompletedTimestamp@odata.type,omitempty"`
	ETag                   string `json:"-"`
}

// NewTodoEntity returns a fresh row with every typed field annotated.
func NewTodoEntity(id, text string, creationTime, ts int64) TodoEntity {
	return TodoEntity{
		PartitionKey:           consts.TodosPartition,
		RowKey:                 id,
		Text:                   text,
		CompletedType:          EdmBoolean,
		CreationTime:           creationTime,
		CreationTimeType:       EdmInt64,
		TextTimestamp:          ts,
		TextTimestampType:      EdmInt64,
		CompletedTimestamp:     ts,
		CompletedTimestampType: EdmInt64,
	}
}

// ToTodo converts the row into its wire form.
func (e TodoEntity) ToTodo() contract.Todo {
	return contract.Todo{ID: e.RowKey, Text: e.Text, Completed: e.Completed, CreationTime: e.CreationTime}
}

// Decode parses a raw entity returned by the table service.
func Decode(data []byte) (TodoEntity, error) {
	var ent TodoEntity
	err := json.Unmarshal(data, &ent)
	return ent, err
}

// ClientOptions returns the retry settings used for every table client.
func ClientOptions() *aztables.ClientOptions {
	return &aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
}

// NewClient opens the todos table from a storage connection string.
func NewClient(connStr, table string) (*aztables.Client, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, ClientOptions())
	if err != nil {
		return nil, err
	}
	return svc.NewClient(table), nil
}

// ListTodos reads the whole todos partition, newest first.
func ListTodos(ctx context.Context, client *aztables.Client) ([]contract.Todo, error) {
	filter := "PartitionKey eq '" + consts.TodosPartition + "'"
	pager := client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	todos := []contract.Todo{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			ent, err := Decode(raw)
			if err != nil {
				return nil, err
			}
			todos = append(todos, ent.ToTodo())
		}
	}
	contract.SortNewestFirst(todos)
	return todos, nil
}

// IsStatus reports whether err is a table service response with the given code.
func IsStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

// IsNotFound reports a missing table, queue or entity.
func IsNotFound(err error) bool { return IsStatus(err, http.StatusNotFound) }

// IsConflict reports an entity or resource that already exists.
func IsConflict(err error) bool { return IsStatus(err, http.StatusConflict) }

// IsPreconditionFailed reports an ETag mismatch.
func IsPreconditionFailed(err error) bool { return IsStatus(err, http.StatusPreconditionFailed) }
