package storage

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

// entityClient is the subset of *aztables.Client used by Tables.
type entityClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

// Tables stores slots as entities of one Azure table. The partition becomes
// the PartitionKey and the slot key the RowKey.
type Tables struct {
	table entityClient
}

// NewTables creates a Tables instance from the given connection string.
func NewTables(connStr, table string) (*Tables, error) {
	tablesClientOptions := aztables.ClientOptions{
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
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return &Tables{table: svc.NewClient(table)}, nil
}

type slotEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Value        string `json:"Value"`
}

// tableKey escapes characters Azure Tables rejects in keys ('/', '\', '#', '?').
func tableKey(s string) string {
	return url.PathEscape(s)
}

func encodeSlotEntity(partition, key string, value []byte) ([]byte, error) {
	return sonic.Marshal(map[string]any{
		"PartitionKey": tableKey(partition),
		"RowKey":       tableKey(key),
		"Value":        string(value),
	})
}

func decodeSlotEntity(data []byte) ([]byte, error) {
	var ent slotEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	return []byte(ent.Value), nil
}

func (t *Tables) Get(ctx context.Context, partition, key string) ([]byte, bool, error) {
	resp, err := t.table.GetEntity(ctx, tableKey(partition), tableKey(key), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	value, err := decodeSlotEntity(resp.Value)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *Tables) Put(ctx context.Context, partition, key string, value []byte) error {
	payload, err := encodeSlotEntity(partition, key, value)
	if err != nil {
		return err
	}
	_, err = t.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (t *Tables) Delete(ctx context.Context, partition, key string) error {
	if _, err := t.table.DeleteEntity(ctx, tableKey(partition), tableKey(key), nil); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
