package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/hookrelay/bus"
	"github.com/smallnest/hookrelay/types"
)

// fakePoller 按调用次序返回预设的批次或错误
type fakePoller struct {
	mu      sync.Mutex
	batches [][]bus.Reply
	errs    []error
	calls   int
	acked   []bus.Reply
	kept    []bus.Reply
	ackErr  error
}

func (p *fakePoller) Poll(ctx context.Context) ([]bus.Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.batches) {
		return p.batches[i], nil
	}
	return nil, nil
}

func (p *fakePoller) Ack(ctx context.Context, reply bus.Reply) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acked = append(p.acked, reply)
	return p.ackErr
}

func (p *fakePoller) Keep(reply bus.Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kept = append(p.kept, reply)
}

func textReply(content string) bus.Reply {
	return bus.Reply{Kind: bus.ReplyKindText, Content: content}
}

func fastOptions(timeout time.Duration) WaitOptions {
	return WaitOptions{Interval: 5 * time.Millisecond, Timeout: timeout}
}

func TestWaitForDecisionMatchesRequestID(t *testing.T) {
	poller := &fakePoller{batches: [][]bus.Reply{
		{textReply("ALLOW xyz789")},
		{textReply("DENY abc123")},
	}}

	d, err := WaitForDecision(context.Background(), poller, ParseReply, "abc123", fastOptions(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != types.DecisionDeny {
		t.Fatalf("expected deny from abc123 reply, got %v", d)
	}
	if len(poller.kept) != 1 || poller.kept[0].Content != "ALLOW xyz789" {
		t.Fatalf("foreign decision should be kept, got %+v", poller.kept)
	}
	if len(poller.acked) != 1 || poller.acked[0].Content != "DENY abc123" {
		t.Fatalf("only matching reply should be acked, got %+v", poller.acked)
	}
}

func TestWaitForDecisionRequestIDIsCaseSensitive(t *testing.T) {
	poller := &fakePoller{batches: [][]bus.Reply{
		{textReply("ALLOW ABC123")},
		{textReply("ALWAYS abc123")},
	}}

	d, err := WaitForDecision(context.Background(), poller, ParseReply, "abc123", fastOptions(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != types.DecisionAlwaysAllow {
		t.Fatalf("expected always allow, got %v", d)
	}
}

func TestWaitForDecisionIgnoresMalformedReplies(t *testing.T) {
	poller := &fakePoller{batches: [][]bus.Reply{
		{textReply("APPROVE abc123"), textReply(""), {Kind: bus.ReplyKindCallback, Content: "allow:unknown_shape"}},
	}}

	d, err := WaitForDecision(context.Background(), poller, ParseReply, "abc123", fastOptions(50*time.Millisecond))
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
	if d != types.DecisionDeny {
		t.Fatalf("timeout should deny, got %v", d)
	}
	if len(poller.kept) != 0 || len(poller.acked) != 0 {
		t.Fatalf("malformed replies should be neither kept nor acked")
	}
}

func TestWaitForDecisionRetriesTransientErrors(t *testing.T) {
	poller := &fakePoller{
		errs: []error{errors.New("connection reset by peer"), errors.New("429 Too Many Requests")},
		batches: [][]bus.Reply{
			nil,
			nil,
			{textReply("ALLOW abc123")},
		},
	}

	d, err := WaitForDecision(context.Background(), poller, ParseReply, "abc123", fastOptions(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != types.DecisionAllow {
		t.Fatalf("expected allow, got %v", d)
	}
	if poller.calls < 3 {
		t.Fatalf("expected at least 3 polls, got %d", poller.calls)
	}
}

func TestWaitForDecisionAbortsOnPermanentError(t *testing.T) {
	poller := &fakePoller{errs: []error{errors.New("Unauthorized")}}

	_, err := WaitForDecision(context.Background(), poller, ParseReply, "abc123", fastOptions(time.Second))
	if err == nil || errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if poller.calls != 1 {
		t.Fatalf("permanent error should stop polling, got %d calls", poller.calls)
	}
}

func TestWaitForDecisionParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := WaitForDecision(ctx, &fakePoller{}, ParseReply, "abc123", fastOptions(5*time.Second))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitForDecisionAckFailureIsNotFatal(t *testing.T) {
	poller := &fakePoller{
		batches: [][]bus.Reply{{textReply("ALLOW abc123")}},
		ackErr:  errors.New("reaction failed"),
	}

	d, err := WaitForDecision(context.Background(), poller, ParseReply, "abc123", fastOptions(time.Second))
	if err != nil || d != types.DecisionAllow {
		t.Fatalf("expected allow without error, got %v (%v)", d, err)
	}
}
