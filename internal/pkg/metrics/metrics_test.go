package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/holarchy/internal/pkg/audit"
	"github.com/ohowland/holarchy/internal/pkg/environment"
	"github.com/ohowland/holarchy/internal/pkg/msg"
	"github.com/ohowland/holarchy/internal/pkg/simulation"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Assert(t, r.GetPrometheusRegistry() != nil)

	count, err := testutil.GatherAndCount(r.GetPrometheusRegistry())
	assert.NilError(t, err)
	assert.Assert(t, count >= 9)
}

func TestRecordTick(t *testing.T) {
	r := NewRegistry()
	ev := simulation.TickEvent{Storage: 320}
	ev.Tick = 7
	ev.TotalGeneration = 900
	ev.TotalConsumption = 600
	ev.Net = 300
	ev.Charged = 160
	ev.Curtailed = 140
	ev.Resilience.Score = 88
	ev.Resilience.Connected = 5
	ev.Resilience.Islanded = 1

	r.RecordTick(ev)
	r.RecordTick(ev)

	assert.Equal(t, testutil.ToFloat64(r.TicksTotal), 2.0)
	assert.Equal(t, testutil.ToFloat64(r.Tick), 7.0)
	assert.Equal(t, testutil.ToFloat64(r.ResilienceScore), 88.0)
	assert.Equal(t, testutil.ToFloat64(r.NetKW), 300.0)
	assert.Equal(t, testutil.ToFloat64(r.StorageKW), 320.0)
	assert.Equal(t, testutil.ToFloat64(r.IslandedHolons), 1.0)
	assert.Equal(t, testutil.ToFloat64(r.SettledKWTotal.WithLabelValues("charged")), 320.0)
	assert.Equal(t, testutil.ToFloat64(r.SettledKWTotal.WithLabelValues("unserved")), 0.0)
}

func TestRecordAudit(t *testing.T) {
	r := NewRegistry()
	r.RecordAudit(audit.NewEntry(audit.Structure, "Hierarchy Change", "", ""))
	r.RecordAudit(audit.NewEntry(audit.Structure, "Research Preset", "", ""))
	r.RecordAudit(audit.NewEntry(audit.Environment, "Weather Update", "", ""))

	expected := `
# HELP holarchy_audit_entries_total Audit log entries by kind
# TYPE holarchy_audit_entries_total counter
holarchy_audit_entries_total{kind="ENVIRONMENT"} 1
holarchy_audit_entries_total{kind="STRUCTURE"} 2
`
	err := testutil.CollectAndCompare(r.AuditEntriesTotal, strings.NewReader(expected))
	assert.NilError(t, err)
}

func TestSubscribe(t *testing.T) {
	c, err := simulation.NewFromConfig(simulation.Config{Seed: 5})
	assert.NilError(t, err)
	defer c.Close()

	r := NewRegistry()
	defer r.Stop()
	assert.NilError(t, r.Subscribe(c))

	c.Advance(4)
	assert.NilError(t, c.SetWeather(environment.Stormy))

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		ticks := testutil.ToFloat64(r.TicksTotal)
		entries := testutil.ToFloat64(r.AuditEntriesTotal.WithLabelValues(string(audit.Environment)))
		if ticks == 4 && entries == 1 {
			return poll.Success()
		}
		return poll.Continue("ticks %v, entries %v", ticks, entries)
	}, poll.WithDelay(5*time.Millisecond), poll.WithTimeout(5*time.Second))

	assert.Equal(t, testutil.ToFloat64(r.Tick), 4.0)
}

func TestStopUnsubscribes(t *testing.T) {
	pub := msg.NewPublisher(uuid.New())
	r := NewRegistry()
	assert.NilError(t, r.Subscribe(pub))
	assert.Equal(t, pub.Subscribers(msg.Tick), 1)
	assert.Equal(t, pub.Subscribers(msg.Audit), 1)

	r.Stop()
	r.Stop()
	assert.Equal(t, pub.Subscribers(msg.Tick), 0)
	assert.Equal(t, pub.Subscribers(msg.Audit), 0)
}

func TestStopWithoutSubscribe(t *testing.T) {
	r := NewRegistry()
	r.Stop()
	r.Stop()
}
