// Package events publishes committed ledger facts to a Redis stream so
// downstream consumers can follow payments and withdrawals as they happen.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/StewieC/DApp-PropertyVault/internal/config"
	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/models"

	"github.com/go-redis/redis/v8"
)

// Event types carried in the "type" field of every stream entry.
const (
	TypeRentPaid         = "rent_paid"
	TypeSavingsWithdrawn = "savings_withdrawn"
)

// Message is one decoded stream entry.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	PropertyID uint64          `json:"property_id"`
	Reference  string          `json:"reference"`
	Data       json.RawMessage `json:"data"`
}

// Publisher appends facts to a capped Redis stream.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

var _ ledger.Publisher = (*Publisher)(nil)

// NewClient builds a client from config. It does not dial.
func NewClient(cfg config.EventsConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func NewPublisher(client *redis.Client, stream string, maxLen int64) *Publisher {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Publisher{client: client, stream: stream, maxLen: maxLen}
}

// Ping checks the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) PublishPayment(ctx context.Context, f *models.PaymentFact) error {
	_, err := p.publish(ctx, TypeRentPaid, f.PropertyID, f.Reference, f)
	return err
}

func (p *Publisher) PublishWithdrawal(ctx context.Context, f *models.WithdrawalFact) error {
	_, err := p.publish(ctx, TypeSavingsWithdrawn, f.PropertyID, f.Reference, f)
	return err
}

func (p *Publisher) publish(ctx context.Context, typ string, propertyID uint64, ref string, data interface{}) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", typ, err)
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":        typ,
			"property_id": strconv.FormatUint(propertyID, 10),
			"reference":   ref,
			"data":        string(body),
			"timestamp":   time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}

// Recent returns up to count entries, newest first.
func (p *Publisher) Recent(ctx context.Context, count int64) ([]Message, error) {
	if count <= 0 {
		count = 50
	}
	entries, err := p.client.XRevRangeN(ctx, p.stream, "+", "-", count).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("xrevrange %s: %w", p.stream, err)
	}
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, decode(e))
	}
	return out, nil
}

func decode(e redis.XMessage) Message {
	m := Message{ID: e.ID}
	if v, ok := e.Values["type"].(string); ok {
		m.Type = v
	}
	if v, ok := e.Values["reference"].(string); ok {
		m.Reference = v
	}
	if v, ok := e.Values["property_id"].(string); ok {
		m.PropertyID, _ = strconv.ParseUint(v, 10, 64)
	}
	if v, ok := e.Values["data"].(string); ok && json.Valid([]byte(v)) {
		m.Data = json.RawMessage(v)
	}
	return m
}
