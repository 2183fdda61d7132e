package ai

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openaigo "github.com/meguminnnnnnnnn/go-openai"

	"ragchat/internal/config"
)

type fakeModel struct {
	calls   int
	replies []string
	errs    []error
}

func (f *fakeModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := "ok"
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &schema.Message{Role: schema.Assistant, Content: reply}, nil
}

func userMessages() []*schema.Message {
	return []*schema.Message{
		{Role: schema.System, Content: "system"},
		{Role: schema.User, Content: "hello"},
	}
}

func TestCompleteNilClientUnavailable(t *testing.T) {
	var c *Client
	_, err := c.Complete(context.Background(), userMessages())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCompleteTrimsReply(t *testing.T) {
	c := NewClientFromModel(&fakeModel{replies: []string{"  answer \n"}}, nil)
	got, err := c.Complete(context.Background(), userMessages())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "answer" {
		t.Fatalf("expected trimmed reply, got %q", got)
	}
}

func TestCompleteUnauthorizedNoRetry(t *testing.T) {
	m := &fakeModel{errs: []error{
		&openaigo.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "invalid api key"},
	}}
	c := NewClientFromModel(m, nil)
	_, err := c.Complete(context.Background(), userMessages())
	if kind, ok := KindOf(err); !ok || kind != KindUnauthorized {
		t.Fatalf("expected unauthorized kind, got %v", err)
	}
	if m.calls != 1 {
		t.Fatalf("unauthorized must not be retried, got %d calls", m.calls)
	}
}

func TestCompleteRateLimitedExhaustsRetries(t *testing.T) {
	rateErr := &openaigo.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "quota"}
	m := &fakeModel{errs: []error{rateErr, rateErr, rateErr}}
	c := NewClientFromModel(m, nil)
	_, err := c.Complete(context.Background(), userMessages())
	if kind, ok := KindOf(err); !ok || kind != KindRateLimited {
		t.Fatalf("expected rate limited kind, got %v", err)
	}
	if m.calls != maxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", maxRetries+1, m.calls)
	}
}

func TestCompleteRetriesTransientThenSucceeds(t *testing.T) {
	m := &fakeModel{
		errs:    []error{&openaigo.APIError{HTTPStatusCode: http.StatusBadGateway, Message: "upstream"}, nil},
		replies: []string{"", "recovered"},
	}
	c := NewClientFromModel(m, nil)
	got, err := c.Complete(context.Background(), userMessages())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "recovered" || m.calls != 2 {
		t.Fatalf("expected recovery on retry, got %q after %d calls", got, m.calls)
	}
}

func TestCompleteNetworkErrorRetried(t *testing.T) {
	m := &fakeModel{
		errs:    []error{&url.Error{Op: "Post", URL: "https://api.example.com", Err: errors.New("connection refused")}, nil},
		replies: []string{"", "back online"},
	}
	c := NewClientFromModel(m, nil)
	got, err := c.Complete(context.Background(), userMessages())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "back online" || m.calls != 2 {
		t.Fatalf("expected retry after network error, got %q after %d calls", got, m.calls)
	}
}

func TestCompleteUnclassifiedErrorIsProviderKind(t *testing.T) {
	m := &fakeModel{errs: []error{errors.New("something odd")}}
	c := NewClientFromModel(m, nil)
	_, err := c.Complete(context.Background(), userMessages())
	if kind, ok := KindOf(err); !ok || kind != KindProvider {
		t.Fatalf("expected provider kind, got %v", err)
	}
	if m.calls != 1 {
		t.Fatalf("unclassified errors must not be retried, got %d calls", m.calls)
	}
}

func TestNewClientRequiresCredential(t *testing.T) {
	if _, err := NewClient(context.Background(), "openai", config.ProviderConfig{Model: "m"}, nil); err == nil {
		t.Fatalf("expected error for missing credential")
	}
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	if _, err := NewClient(context.Background(), "groqqq", config.ProviderConfig{APIKey: "k"}, nil); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
