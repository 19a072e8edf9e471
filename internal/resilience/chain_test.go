package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/scriptsync/pkg/provider/stt"
	sttmock "github.com/MrWong99/scriptsync/pkg/provider/stt/mock"
)

var testAudio = stt.Audio{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1}

func TestChain_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{Result: stt.Transcript{Text: "primary"}}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "secondary"}}

	c := NewChain(primary, "primary", BreakerConfig{MaxFailures: 3})
	c.Add("secondary", secondary)

	tr, err := c.Transcribe(context.Background(), testAudio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "primary" {
		t.Errorf("text = %q, want primary", tr.Text)
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestChain_Failover(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("primary down")}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "secondary"}}

	c := NewChain(primary, "primary", BreakerConfig{MaxFailures: 2})
	c.Add("secondary", secondary)

	for range 3 {
		tr, err := c.Transcribe(context.Background(), testAudio)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tr.Text != "secondary" {
			t.Fatalf("text = %q, want secondary", tr.Text)
		}
	}
	// The primary breaker opened after two failures and was skipped on
	// the third call.
	if primary.CallCount() != 2 {
		t.Errorf("primary called %d times, want 2", primary.CallCount())
	}
	if st, _ := c.State("primary"); st != StateOpen {
		t.Errorf("primary state = %v, want open", st)
	}
}

func TestChain_AllFail(t *testing.T) {
	c := NewChain(&sttmock.Provider{Err: errors.New("a down")}, "a", BreakerConfig{})
	c.Add("b", &sttmock.Provider{Err: errors.New("b down")})

	_, err := c.Transcribe(context.Background(), testAudio)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	for _, name := range []string{"a: a down", "b: b down"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %q", err, name)
		}
	}
}

func TestChain_NoAudioDoesNotFailOver(t *testing.T) {
	primary := &sttmock.Provider{}
	secondary := &sttmock.Provider{}
	c := NewChain(primary, "primary", BreakerConfig{MaxFailures: 1})
	c.Add("secondary", secondary)

	_, err := c.Transcribe(context.Background(), stt.Audio{SampleRate: 16000, Channels: 1})
	if !errors.Is(err, stt.ErrNoAudio) {
		t.Fatalf("err = %v, want ErrNoAudio", err)
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.CallCount())
	}
	if st, _ := c.State("primary"); st != StateClosed {
		t.Errorf("primary state = %v, want closed", st)
	}
}

func TestChain_State_Unknown(t *testing.T) {
	c := NewChain(&sttmock.Provider{}, "only", BreakerConfig{})
	if _, ok := c.State("missing"); ok {
		t.Error("State(missing) ok = true")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

type closer struct {
	sttmock.Provider
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return nil
}

func TestChain_Close(t *testing.T) {
	p := &closer{}
	c := NewChain(&sttmock.Provider{}, "plain", BreakerConfig{})
	c.Add("closer", p)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p.closed {
		t.Error("provider not closed")
	}
}
