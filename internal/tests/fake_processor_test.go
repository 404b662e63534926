package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fieldbook/ppv-settlement/internal/services"
)

const validSignature = "t=1,v1=ok"

// stubProcessor keeps intents in memory. Webhook payloads are plain JSON
// WebhookEvents accepted only with validSignature.
type stubProcessor struct {
	mu    sync.Mutex
	seq   int
	holds map[string]*services.HoldHandle
}

func newStubProcessor() *stubProcessor {
	return &stubProcessor{holds: map[string]*services.HoldHandle{}}
}

func (p *stubProcessor) next(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_%d", prefix, p.seq)
}

func (p *stubProcessor) CreateManualCaptureHold(_ context.Context, amount int64, _ string, _ map[string]string) (*services.HoldHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.next("pi_hold")
	hold := &services.HoldHandle{ID: id, ClientSecret: id + "_secret", Amount: amount, Status: services.HoldCapturable, CreatedAt: time.Now().UTC()}
	p.holds[id] = hold
	copied := *hold
	return &copied, nil
}

func (p *stubProcessor) GetHold(_ context.Context, id string) (*services.HoldHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hold, ok := p.holds[id]
	if !ok {
		return nil, fmt.Errorf("no such payment intent %s", id)
	}
	copied := *hold
	return &copied, nil
}

func (p *stubProcessor) CaptureHold(_ context.Context, id string) (*services.HoldHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hold, ok := p.holds[id]
	if !ok {
		return nil, fmt.Errorf("no such payment intent %s", id)
	}
	hold.Status = services.HoldSucceeded
	copied := *hold
	return &copied, nil
}

func (p *stubProcessor) CancelHold(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if hold, ok := p.holds[id]; ok {
		hold.Status = services.HoldCanceled
	}
	return nil
}

func (p *stubProcessor) CreateImmediateCharge(_ context.Context, amount int64, _ string, _ map[string]string) (*services.ChargeHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.next("pi_charge")
	return &services.ChargeHandle{ID: id, ClientSecret: id + "_secret", Amount: amount, Status: services.HoldAwaitingConfirmation}, nil
}

func (p *stubProcessor) CreateTransfer(_ context.Context, amount int64, _, reference string) (*services.TransferHandle, error) {
	return &services.TransferHandle{ID: "tr_" + reference, Amount: amount}, nil
}

func (p *stubProcessor) VerifyWebhookSignature(payload []byte, signature string) (*services.WebhookEvent, error) {
	if signature != validSignature {
		return nil, services.ErrInvalidSignature
	}
	var event services.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidSignature, err)
	}
	return &event, nil
}
