package handler

import "github.com/fractalops/uatu/internal/model"

// Investigator is the narrow seam InvestigationDispatcher hands events
// to; internal/investigate.Orchestrator satisfies it. Kept as a local
// interface (rather than importing internal/investigate directly) so
// the handler package stays a thin adapter over whatever enqueues
// investigations, matching spec.md §4.7's framing of the dispatcher as
// hanging off the Investigation Orchestrator.
type Investigator interface {
	Submit(event model.AnomalyEvent)
}

// InvestigationDispatcher adapts the Event Bus's Handler shape
// (OnEvent(event) error) onto the Investigation Orchestrator's
// fire-and-forget Submit, per spec.md §4.7's fourth handler kind.
type InvestigationDispatcher struct {
	orchestrator Investigator
}

// NewInvestigationDispatcher constructs a dispatcher over orchestrator.
func NewInvestigationDispatcher(orchestrator Investigator) *InvestigationDispatcher {
	return &InvestigationDispatcher{orchestrator: orchestrator}
}

// OnEvent enqueues event with the Investigation Orchestrator. Submit
// never fails synchronously (enqueue is a non-blocking channel send
// onto an unbounded-by-convention queue), so OnEvent always returns nil.
func (d *InvestigationDispatcher) OnEvent(event model.AnomalyEvent) error {
	d.orchestrator.Submit(event)
	return nil
}
