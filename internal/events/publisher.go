package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fuelledger/internal/config"
)

// Message is the wire form of a relayed outbox event.
type Message struct {
	ID            string         `json:"id"`
	CompanyID     string         `json:"company_id"`
	Type          string         `json:"type"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	Payload       map[string]any `json:"payload"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

//go:generate mockgen -source=publisher.go -destination=./mocks/mock_publisher.go -package=mocks

// Publisher delivers relayed events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg Message) error
}

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisClient(cfg config.Config) (*redis.Client, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	}), nil
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channel, body).Err()
}
