package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"nexflow/domain"
)

// LayoutStore persists manual within-column ordering in an Azure table. Each
// project is a partition with one row per column.
type LayoutStore struct {
	table *aztables.Client
}

// NewLayoutStore connects to table using an Azure Storage connection string.
func NewLayoutStore(connStr, table string) (*LayoutStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, fmt.Errorf("layout store: %w", err)
	}
	return &LayoutStore{table: svc.NewClient(table)}, nil
}

// EnsureTable creates the table if it does not exist yet.
func (s *LayoutStore) EnsureTable(ctx context.Context) error {
	_, err := s.table.CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

type layoutEntity struct {
	aztables.Entity
	Order string `json:"Order"`
}

// layoutRow is the write side of layoutEntity. Timestamp is owned by the service.
type layoutRow struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Order        string `json:"Order"`
}

func (s *LayoutStore) LoadLayout(ctx context.Context, project string) (map[domain.Column][]string, error) {
	filter := partitionFilter(project)
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	layout := map[domain.Column][]string{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			col, ids, err := decodeLayoutEntity(raw)
			if err != nil {
				return nil, err
			}
			if col.Valid() {
				layout[col] = ids
			}
		}
	}
	return layout, nil
}

func (s *LayoutStore) SaveLayout(ctx context.Context, project string, layout map[domain.Column][]string) error {
	for _, col := range domain.Columns {
		ids, ok := layout[col]
		if !ok {
			continue
		}
		payload, err := encodeLayoutEntity(project, col, ids)
		if err != nil {
			return err
		}
		if _, err := s.table.UpsertEntity(ctx, payload, nil); err != nil {
			return fmt.Errorf("save layout %s/%s: %w", project, col, err)
		}
	}
	return nil
}

func encodeLayoutEntity(project string, col domain.Column, ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	order, err := sonic.MarshalString(ids)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(layoutRow{PartitionKey: project, RowKey: string(col), Order: order})
}

func decodeLayoutEntity(data []byte) (domain.Column, []string, error) {
	var ent layoutEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return "", nil, err
	}
	var ids []string
	if ent.Order != "" {
		if err := sonic.UnmarshalString(ent.Order, &ids); err != nil {
			return "", nil, fmt.Errorf("decode layout order for %s: %w", ent.RowKey, err)
		}
	}
	return domain.Column(ent.RowKey), ids, nil
}

func partitionFilter(project string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(project, "'", "''") + "'"
}

// MemoryLayouts is a LayoutStore kept in process memory.
type MemoryLayouts struct {
	mu      sync.Mutex
	layouts map[string]map[domain.Column][]string
}

func NewMemoryLayouts() *MemoryLayouts {
	return &MemoryLayouts{layouts: map[string]map[domain.Column][]string{}}
}

func (m *MemoryLayouts) LoadLayout(_ context.Context, project string) (map[domain.Column][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyLayout(m.layouts[project]), nil
}

func (m *MemoryLayouts) SaveLayout(_ context.Context, project string, layout map[domain.Column][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layouts[project] = copyLayout(layout)
	return nil
}

func copyLayout(in map[domain.Column][]string) map[domain.Column][]string {
	if in == nil {
		return nil
	}
	out := make(map[domain.Column][]string, len(in))
	for c, ids := range in {
		out[c] = append([]string(nil), ids...)
	}
	return out
}
