package alertfmt_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/alertfmt"
	"github.com/codeready-toolchain/argus/pkg/argusmodel"
)

type fakeChannel struct {
	name string

	mu      sync.Mutex
	sent    []argusmodel.ActiveAlert
	digests []alertfmt.AlertDigest
	failSend bool
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(_ context.Context, a argusmodel.ActiveAlert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return assertError{"send failed"}
	}
	c.sent = append(c.sent, a)
	return nil
}

func (c *fakeChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type digestChannel struct {
	fakeChannel
}

func (c *digestChannel) SendDigest(_ context.Context, d alertfmt.AlertDigest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.digests = append(c.digests, d)
	return nil
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func outboundAlert(ip string) argusmodel.ActiveAlert {
	return argusmodel.ActiveAlert{
		ID: ip, RuleID: "rule-sec", Severity: argusmodel.SeverityNotable,
		Event: argusmodel.Event{
			Type: "suspicious_outbound", Data: map[string]any{"remote_ip": ip},
		},
	}
}

func TestFormatter_UrgentSendsImmediately(t *testing.T) {
	ch := &fakeChannel{name: "webhook"}
	f := alertfmt.New([]alertfmt.Channel{ch}, nil, time.Hour)

	f.Deliver(argusmodel.ActiveAlert{ID: "a1", Severity: argusmodel.SeverityUrgent})

	require.Equal(t, 1, ch.sentCount())
}

func TestFormatter_NotableBuffersUntilFlush(t *testing.T) {
	ch := &digestChannel{fakeChannel: fakeChannel{name: "webhook"}}
	f := alertfmt.New([]alertfmt.Channel{ch}, nil, time.Hour)

	f.Deliver(argusmodel.ActiveAlert{ID: "a1", Severity: argusmodel.SeverityNotable, Event: argusmodel.Event{Type: "cpu_high"}})
	require.Empty(t, ch.digests, "must not send before flush")
}

func TestBuildDigest_GroupsSuspiciousOutboundByIP(t *testing.T) {
	items := []argusmodel.ActiveAlert{
		outboundAlert("1.2.3.4"), outboundAlert("1.2.3.4"), outboundAlert("1.2.3.4"),
		{ID: "b1", Event: argusmodel.Event{Type: "cpu_high", Message: "cpu spike"}},
		{ID: "b2", Event: argusmodel.Event{Type: "memory_high", Message: "mem spike"}},
	}

	digest := alertfmt.BuildDigest(items)
	require.Len(t, digest.Groups, 3)

	var outboundGroup *alertfmt.DigestGroup
	for i := range digest.Groups {
		if digest.Groups[i].Key == "suspicious_outbound:1.2.3.4" {
			outboundGroup = &digest.Groups[i]
		}
	}
	require.NotNil(t, outboundGroup)
	require.Equal(t, "3 new outbound connections to 1.2.3.4", outboundGroup.Summary)
}

func TestBuildDigest_EmptyYieldsNoGroups(t *testing.T) {
	digest := alertfmt.BuildDigest(nil)
	require.Empty(t, digest.Groups)
}

func TestFormatEvent_KnownAndUnknownTypes(t *testing.T) {
	known := alertfmt.FormatEvent(argusmodel.Event{Type: "cpu_high"})
	require.Equal(t, "CPU usage critically high", known)

	unknown := alertfmt.FormatEvent(argusmodel.Event{Type: "totally_custom", Message: "custom message"})
	require.Equal(t, "custom message", unknown)
}

type erroringTriager struct{}

func (erroringTriager) Triage(context.Context, []string) (string, error) {
	return "", assertError{"llm unavailable"}
}

func TestFormatter_TriageFailureIsSilent(t *testing.T) {
	ch := &digestChannel{fakeChannel: fakeChannel{name: "webhook"}}
	f := alertfmt.New([]alertfmt.Channel{ch}, erroringTriager{}, time.Hour)

	f.Deliver(argusmodel.ActiveAlert{ID: "a1", Severity: argusmodel.SeverityNotable, Event: argusmodel.Event{Type: "cpu_high"}})

	// Directly exercise the internal flush path via Stop, which drains and
	// flushes once the background loop is running.
	f.Start(context.Background())
	f.Stop()

	require.Len(t, ch.digests, 1)
	require.Empty(t, ch.digests[0].AITriage)
}

func TestFormatter_FallbackChannelSendsItemByItem(t *testing.T) {
	ch := &fakeChannel{name: "plain"} // does not implement DigestSender
	f := alertfmt.New([]alertfmt.Channel{ch}, nil, time.Hour)

	f.Deliver(argusmodel.ActiveAlert{ID: "a1", Severity: argusmodel.SeverityNotable, Event: argusmodel.Event{Type: "cpu_high"}})
	f.Start(context.Background())
	f.Stop()

	require.Equal(t, 1, ch.sentCount())
}
