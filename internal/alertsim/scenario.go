// Package alertsim generates synthetic camera alerts for load and demo runs.
package alertsim

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"camguard.dev/internal/monitor"
)

// Camera identifies one device alerts are raised for.
type Camera struct {
	TenantID string
	CameraID string
}

// Scenario is the population alerts are drawn from.
type Scenario struct {
	Name     string
	Cameras  []Camera
	Messages map[string][]string
	// Severities are drawn with these relative weights.
	SeverityWeights map[string]int
}

// NightShiftScenario is a store that is closed for the night: mostly motion,
// some people, rare intrusions.
func NightShiftScenario(cameras []Camera) Scenario {
	return Scenario{
		Name:    "NightShift",
		Cameras: cameras,
		Messages: map[string][]string{
			"movement":         {"Motion near the entrance", "Motion in the parking lot", "Shadow moving across aisle 3"},
			"person_detected":  {"Person detected at the back door", "Person loitering by the window"},
			"intrusion":        {"Door forced open", "Window breach detected"},
			"object_detection": {"Unattended bag on the floor", "Vehicle stopped in the loading bay"},
		},
		SeverityWeights: map[string]int{"low": 50, "medium": 30, "high": 15, "critical": 5},
	}
}

// Generator draws alerts from a scenario. It is safe for concurrent use.
type Generator struct {
	scenario   Scenario
	types      []string
	severities []string
	total      int
	now        func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator builds a generator; a zero seed picks one from the clock.
func NewGenerator(s Scenario, seed int64) (*Generator, error) {
	if len(s.Cameras) == 0 {
		return nil, errors.New("alertsim: scenario needs at least one camera")
	}
	if len(s.Messages) == 0 || len(s.SeverityWeights) == 0 {
		return nil, errors.New("alertsim: scenario needs messages and severities")
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &Generator{scenario: s, now: time.Now, rnd: rand.New(rand.NewSource(seed))}
	for _, t := range []string{"movement", "person_detected", "intrusion", "object_detection"} {
		if len(s.Messages[t]) > 0 {
			g.types = append(g.types, t)
		}
	}
	for _, sev := range []string{"low", "medium", "high", "critical"} {
		if w := s.SeverityWeights[sev]; w > 0 {
			g.severities = append(g.severities, sev)
			g.total += w
		}
	}
	if len(g.types) == 0 || g.total == 0 {
		return nil, errors.New("alertsim: scenario has no usable alert types or severities")
	}
	return g, nil
}

// Next returns the next synthetic alert.
func (g *Generator) Next() monitor.AlertInput {
	g.mu.Lock()
	defer g.mu.Unlock()

	cam := g.scenario.Cameras[g.rnd.Intn(len(g.scenario.Cameras))]
	typ := g.types[g.rnd.Intn(len(g.types))]
	msgs := g.scenario.Messages[typ]

	pick := g.rnd.Intn(g.total)
	severity := g.severities[len(g.severities)-1]
	for _, sev := range g.severities {
		if pick < g.scenario.SeverityWeights[sev] {
			severity = sev
			break
		}
		pick -= g.scenario.SeverityWeights[sev]
	}

	return monitor.AlertInput{
		TenantID:  cam.TenantID,
		CameraID:  cam.CameraID,
		Type:      typ,
		Severity:  severity,
		Message:   msgs[g.rnd.Intn(len(msgs))],
		CreatedAt: g.now().UTC(),
	}
}
