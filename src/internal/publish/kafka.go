package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/VectorBits/econaudit/src/internal/finding"
	"github.com/VectorBits/econaudit/src/internal/report"
)

// SummaryEvent is the message published for every audited contract.
type SummaryEvent struct {
	RunID              string                   `json:"run_id"`
	Chain              string                   `json:"chain"`
	Contract           string                   `json:"contract"`
	Path               string                   `json:"path"`
	Address            string                   `json:"address,omitempty"`
	Status             string                   `json:"status"`
	Error              string                   `json:"error,omitempty"`
	RiskScore          float64                  `json:"risk_score"`
	TotalFindings      int                      `json:"total_findings"`
	Severity           map[finding.Severity]int `json:"severity"`
	AnalyzersRun       []string                 `json:"analyzers_run"`
	ProfitPotentialUSD float64                  `json:"profit_potential_usd"`
	Opportunities      int                      `json:"arbitrage_opportunities"`
	AuditedAt          time.Time                `json:"audited_at"`
}

func NewSummaryEvent(runID, chain string, c *report.ContractResult) SummaryEvent {
	ev := SummaryEvent{
		RunID:         runID,
		Chain:         chain,
		Contract:      c.Contract,
		Path:          c.Path,
		Address:       c.Address,
		Status:        c.Status,
		Error:         c.Error,
		RiskScore:     c.Summary.RiskScore,
		TotalFindings: c.Summary.TotalVulnerabilities,
		Severity:      c.Summary.Severity,
		AnalyzersRun:  c.Summary.AnalyzersRun,
		AuditedAt:     c.AuditTime,
	}
	if c.Economic != nil {
		ev.ProfitPotentialUSD = c.Economic.TotalProfitPotentialUSD
	}
	if c.Arbitrage != nil {
		ev.Opportunities = c.Arbitrage.TotalOpportunities
	}
	return ev
}

// Key partitions events so every audit of the same contract lands on the
// same partition.
func (e SummaryEvent) Key() string {
	if e.Address != "" {
		return e.Chain + ":" + e.Address
	}
	return e.Chain + ":" + e.Path
}

type Publisher interface {
	Publish(ctx context.Context, event SummaryEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher implements Publisher with a synchronous kafka-go writer.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("no kafka topic configured")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &KafkaPublisher{writer: writer, topic: cfg.Topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event SummaryEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal summary event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key()),
		Value: data,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoOpPublisher drops every event.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, SummaryEvent) error { return nil }
func (NoOpPublisher) Close() error                                { return nil }
