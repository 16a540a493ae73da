// internal/lazyframe/loadon.go
package lazyframe

import (
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Strategy decides when a frame loads for the first time.
type Strategy string

const (
	StrategyConnect Strategy = "connect"
	StrategyVisible Strategy = "visible"
	StrategyEvent   Strategy = "event"
)

// EventTrigger names the container whose event starts a load.
type EventTrigger struct {
	Name        string
	ContainerID string
}

// LoadOn is the decoded load-on value.
type LoadOn struct {
	Strategy Strategy
	Event    EventTrigger
}

type loadOnJSON struct {
	Strategy string            `json:"strategy"`
	Event    map[string]string `json:"event"`
}

// ParseLoadOn decodes a load-on value. It accepts a bare strategy name or
// {"strategy": "...", "event": {"<name>": "<containerId>"}}. An empty value
// means connect. When an event map is present without a strategy the
// strategy is event. defaultEvent fills a missing event name.
func ParseLoadOn(raw, defaultEvent string) (LoadOn, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return LoadOn{Strategy: StrategyConnect}, nil
	}
	if !strings.HasPrefix(raw, "{") {
		s := Strategy(strings.ToLower(strings.Trim(raw, `"`)))
		if !s.valid() {
			return LoadOn{}, fmt.Errorf("unknown load strategy %q", raw)
		}
		if s == StrategyEvent {
			return LoadOn{}, fmt.Errorf("event strategy needs a container")
		}
		return LoadOn{Strategy: s}, nil
	}

	var decoded loadOnJSON
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return LoadOn{}, fmt.Errorf("invalid load-on value: %w", err)
	}
	out := LoadOn{Strategy: Strategy(strings.ToLower(decoded.Strategy))}
	if len(decoded.Event) > 0 {
		names := make([]string, 0, len(decoded.Event))
		for name := range decoded.Event {
			names = append(names, name)
		}
		sort.Strings(names)
		out.Event = EventTrigger{Name: names[0], ContainerID: decoded.Event[names[0]]}
		if out.Strategy == "" {
			out.Strategy = StrategyEvent
		}
	}
	if out.Strategy == "" {
		out.Strategy = StrategyConnect
	}
	if !out.Strategy.valid() {
		return LoadOn{}, fmt.Errorf("unknown load strategy %q", decoded.Strategy)
	}
	if out.Strategy == StrategyEvent {
		if out.Event.ContainerID == "" {
			return LoadOn{}, fmt.Errorf("event strategy needs a container")
		}
		if out.Event.Name == "" {
			out.Event.Name = defaultEvent
		}
	}
	return out, nil
}

func (s Strategy) valid() bool {
	switch s {
	case StrategyConnect, StrategyVisible, StrategyEvent:
		return true
	}
	return false
}
