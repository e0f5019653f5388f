package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/blues/ilr/internal/logger"
	"github.com/blues/ilr/internal/model"
)

// EventStore 发件箱读写
type EventStore interface {
	PendingEvents(ctx context.Context, limit int) ([]model.IntentEventModel, error)
	MarkEventDelivered(ctx context.Context, id int64) error
	MarkEventFailed(ctx context.Context, id int64, cause error) error
}

// Event 推送给下游的状态变更
type Event struct {
	EventId   int64             `json:"eventId"`
	IntentId  string            `json:"intentId"`
	Version   int64             `json:"version"`
	FromState model.IntentState `json:"fromState,omitempty"`
	ToState   model.IntentState `json:"toState"`
	TxHash    string            `json:"txHash,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Dispatcher 将发件箱事件以 JSON POST 到 webhook，至少投递一次
type Dispatcher struct {
	store     EventStore
	client    *http.Client
	url       string
	batchSize int
}

// NewDispatcher 创建投递器，client 为空时使用带超时的默认客户端
func NewDispatcher(store EventStore, url string, batchSize int, client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{store: store, client: client, url: url, batchSize: batchSize}
}

// IdempotencyKey 下游据此去重
func IdempotencyKey(e model.IntentEventModel) string {
	return fmt.Sprintf("%s:%d:%s", e.IntentId, e.Version, e.ToState)
}

// DispatchPending 按写入顺序投递一批事件，遇到失败即停止，剩余事件下一轮重试
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	events, err := d.store.PendingEvents(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, e := range events {
		if err := d.post(ctx, e); err != nil {
			logger.Warn("Failed to deliver event %d (intent %s -> %s): %v", e.Id, e.IntentId, e.ToState, err)
			if markErr := d.store.MarkEventFailed(context.WithoutCancel(ctx), e.Id, err); markErr != nil {
				logger.Error("Failed to record delivery failure of event %d: %v", e.Id, markErr)
			}
			return delivered, err
		}
		if err := d.store.MarkEventDelivered(context.WithoutCancel(ctx), e.Id); err != nil {
			return delivered, err
		}
		delivered++
	}
	if delivered > 0 {
		logger.Debug("Delivered %d intent events", delivered)
	}
	return delivered, nil
}

func (d *Dispatcher) post(ctx context.Context, e model.IntentEventModel) error {
	body, err := json.Marshal(Event{
		EventId:   e.Id,
		IntentId:  e.IntentId,
		Version:   e.Version,
		FromState: e.FromState,
		ToState:   e.ToState,
		TxHash:    e.TxHash,
		Reason:    e.Reason,
		CreatedAt: e.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", IdempotencyKey(e))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
