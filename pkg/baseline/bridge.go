package baseline

import (
	"log/slog"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/bus"
)

// Bridge subscribes a Detector to the bus's "metric_collected" events and
// republishes every flagged deviation as an "anomaly_detected" event, so
// the Alert Engine sees baseline anomalies the same way it sees any other
// classified event (spec.md §4.4). Grounded on pkg/alert.Engine.Start's
// subscribe-and-republish shape.
type Bridge struct {
	detector *Detector
	bus      *bus.Bus
	tenant   string

	unsubscribe func()
}

// NewBridge wires detector to b. Call Start to begin subscribing.
func NewBridge(detector *Detector, b *bus.Bus, tenant string) *Bridge {
	return &Bridge{detector: detector, bus: b, tenant: tenant}
}

// Start subscribes to every event on the bus; only "metric_collected"
// events are inspected.
func (br *Bridge) Start() {
	br.unsubscribe = br.bus.Subscribe(bus.Filter{}, br.handle)
}

// Stop unsubscribes.
func (br *Bridge) Stop() {
	if br.unsubscribe != nil {
		br.unsubscribe()
	}
}

func (br *Bridge) handle(e argusmodel.Event) error {
	if e.Type != "metric_collected" {
		return nil
	}
	for name := range e.Data {
		value, ok := e.Value(name)
		if !ok {
			continue
		}
		anomaly, found := br.detector.Check(name, value)
		if !found {
			continue
		}
		slog.Info("baseline: anomaly detected", "metric", name, "z_score", anomaly.Z, "value", value)
		br.bus.Publish(anomaly.ToEvent(e.Source, br.tenant))
	}
	return nil
}
