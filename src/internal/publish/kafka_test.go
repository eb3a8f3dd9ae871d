package publish

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/VectorBits/econaudit/src/internal/economic"
	"github.com/VectorBits/econaudit/src/internal/finding"
	"github.com/VectorBits/econaudit/src/internal/report"
	"github.com/VectorBits/econaudit/src/internal/risk"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func sampleEvent() SummaryEvent {
	findings := []finding.Finding{{Type: "reentrancy", Severity: finding.SeverityCritical}}
	c := report.NewContractResult("Vault", "contracts/Vault.sol")
	c.Findings = findings
	c.Summary = risk.Aggregate(findings, []string{"slither"})
	c.Economic = &economic.EconomicAnalysis{TotalProfitPotentialUSD: 500}
	c.Arbitrage = &economic.ArbitrageAnalysis{TotalOpportunities: 3}
	return NewSummaryEvent("run-1", "bsc", &c)
}

func TestNewSummaryEvent(t *testing.T) {
	ev := sampleEvent()
	if ev.RiskScore != 25 || ev.TotalFindings != 1 || ev.ProfitPotentialUSD != 500 || ev.Opportunities != 3 {
		t.Errorf("event = %+v", ev)
	}
	if ev.Key() != "bsc:contracts/Vault.sol" {
		t.Errorf("key = %s", ev.Key())
	}
	ev.Address = "0xabc"
	if ev.Key() != "bsc:0xabc" {
		t.Errorf("key with address = %s", ev.Key())
	}
}

func TestKafkaPublisherPublish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "econaudit.summaries"}

	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "bsc:contracts/Vault.sol" {
		t.Fatalf("messages = %+v", w.msgs)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["run_id"] != "run-1" || decoded["contract"] != "Vault" {
		t.Errorf("payload = %v", decoded)
	}

	_ = p.Close()
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestKafkaPublisherError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}, topic: "t"}
	err := p.Publish(context.Background(), sampleEvent())
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Errorf("err = %v", err)
	}
}

func TestNewKafkaPublisherValidation(t *testing.T) {
	if _, err := NewKafkaPublisher(KafkaConfig{Topic: "t"}); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Error("expected error without topic")
	}
	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	if err != nil {
		t.Fatal(err)
	}
	_ = p.Close()
}
