package events

import (
	"testing"
)

func TestSubjectFor(t *testing.T) {
	b := &Bus{active: true}

	tests := []struct {
		event Event
		want  string
	}{
		{
			Event{Type: EventSessionStarted, Session: "build"},
			"ringlog.session.build.session.started",
		},
		{
			Event{Type: EventSessionExited, Session: "build"},
			"ringlog.session.build.session.exited",
		},
		// Characters with meaning in NATS subjects get folded.
		{
			Event{Type: EventSessionStarted, Session: "ci/job.42"},
			"ringlog.session.ci-job-42.session.started",
		},
		{
			Event{Type: EventSessionExited, Session: "a b>c*d"},
			"ringlog.session.a-b-c-d.session.exited",
		},
	}

	for _, tc := range tests {
		t.Run(tc.event.Session+"/"+string(tc.event.Type), func(t *testing.T) {
			got := b.subjectFor(tc.event)
			if got != tc.want {
				t.Errorf("subjectFor(%+v) = %q, want %q", tc.event, got, tc.want)
			}
		})
	}
}

func TestInactiveBus(t *testing.T) {
	bus, err := NewBus("")
	if err != nil {
		t.Fatalf("NewBus(\"\") returned error: %v", err)
	}
	if bus.active {
		t.Fatal("bus with no URL should be inactive")
	}
	if err := bus.Publish(Event{Type: EventSessionStarted, Session: "x"}); err != nil {
		t.Fatalf("inactive Publish returned error: %v", err)
	}
	bus.Close()
}
