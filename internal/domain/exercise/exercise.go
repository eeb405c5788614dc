// Package exercise holds the static registry of supported exercises: which
// joints each one scores, the angle bands per tier and the feedback text.
package exercise

import (
	"fmt"
	"slices"
	"strings"
)

// Type names a supported exercise.
type Type string

// Supported exercise types.
const (
	ArmExtension  Type = "arm_extension"
	Squat         Type = "squat"
	ShoulderPress Type = "shoulder_press"
)

// Tier is the discretized score band of a joint angle.
type Tier string

// Tiers, best first.
const (
	Perfect          Tier = "PERFECT"
	Good             Tier = "GOOD"
	NeedsImprovement Tier = "NEEDS_IMPROVEMENT"
)

// Range is a closed angle interval in degrees.
type Range struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Contains reports whether angle lies within [Lo, Hi].
func (r Range) Contains(angle float64) bool {
	return angle >= r.Lo && angle <= r.Hi
}

// Overlaps reports whether r and o share any angle.
func (r Range) Overlaps(o Range) bool {
	return r.Lo <= o.Hi && o.Lo <= r.Hi
}

// Triple names the three landmarks of a joint; Vertex is where the angle is measured.
type Triple struct {
	Joint  string `json:"joint"`
	A      string `json:"a"`
	Vertex string `json:"vertex"`
	C      string `json:"c"`
}

// Feedback holds the message shown for each tier.
type Feedback struct {
	Perfect          string `json:"perfect"`
	Good             string `json:"good"`
	NeedsImprovement string `json:"needs_improvement"`
}

// For returns the message of tier t.
func (f Feedback) For(t Tier) string {
	switch t {
	case Perfect:
		return f.Perfect
	case Good:
		return f.Good
	default:
		return f.NeedsImprovement
	}
}

// Config is the static definition of one exercise.
type Config struct {
	Type         Type     `json:"type"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	TargetJoints []string `json:"target_joints"`
	Triples      []Triple `json:"joints"`
	Perfect      Range    `json:"perfect_range"`
	Good         Range    `json:"good_range"`
	Feedback     Feedback `json:"feedback"`
}

// Tier classifies angle. The perfect band is checked before the good band.
func (c Config) Tier(angle float64) Tier {
	switch {
	case c.Perfect.Contains(angle):
		return Perfect
	case c.Good.Contains(angle):
		return Good
	default:
		return NeedsImprovement
	}
}

func (c Config) clone() Config {
	c.TargetJoints = slices.Clone(c.TargetJoints)
	c.Triples = slices.Clone(c.Triples)
	return c
}

var registry = map[Type]Config{
	ArmExtension: {
		Type:         ArmExtension,
		Name:         "Arm Extension Exercise",
		Description:  "Extend arms fully for proper form",
		TargetJoints: []string{"left_elbow", "right_elbow"},
		Triples: []Triple{
			{Joint: "left_arm", A: "left_shoulder", Vertex: "left_elbow", C: "left_wrist"},
			{Joint: "right_arm", A: "right_shoulder", Vertex: "right_elbow", C: "right_wrist"},
		},
		Perfect: Range{Lo: 150, Hi: 180},
		Good:    Range{Lo: 120, Hi: 149},
		Feedback: Feedback{
			Perfect:          "Perfect arm extension!",
			Good:             "Almost there, extend a bit more",
			NeedsImprovement: "Bend your arm more for proper form",
		},
	},
	Squat: {
		Type:         Squat,
		Name:         "Squat Exercise",
		Description:  "Perform proper squat form",
		TargetJoints: []string{"left_knee", "right_knee"},
		Triples: []Triple{
			{Joint: "left_knee", A: "left_hip", Vertex: "left_knee", C: "left_ankle"},
			{Joint: "right_knee", A: "right_hip", Vertex: "right_knee", C: "right_ankle"},
		},
		Perfect: Range{Lo: 90, Hi: 120},
		Good:    Range{Lo: 70, Hi: 89},
		Feedback: Feedback{
			Perfect:          "Perfect squat depth!",
			Good:             "Go a bit deeper for better form",
			NeedsImprovement: "Squat deeper for proper form",
		},
	},
	ShoulderPress: {
		Type:         ShoulderPress,
		Name:         "Shoulder Press Exercise",
		Description:  "Press weights overhead with proper form",
		TargetJoints: []string{"left_shoulder", "right_shoulder"},
		Triples: []Triple{
			{Joint: "left_shoulder", A: "left_hip", Vertex: "left_shoulder", C: "left_elbow"},
			{Joint: "right_shoulder", A: "right_hip", Vertex: "right_shoulder", C: "right_elbow"},
		},
		Perfect: Range{Lo: 160, Hi: 180},
		Good:    Range{Lo: 140, Hi: 159},
		Feedback: Feedback{
			Perfect:          "Perfect shoulder press!",
			Good:             "Almost fully extended",
			NeedsImprovement: "Extend your arms more",
		},
	},
}

// Lookup returns the configuration of t.
func Lookup(t Type) (Config, error) {
	c, ok := registry[t]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownExercise, string(t))
	}
	return c.clone(), nil
}

// Parse converts a user supplied name into a registered Type.
func Parse(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := registry[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownExercise, s)
	}
	return t, nil
}

// Types lists registered exercise types in lexical order.
func Types() []Type {
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// All returns every registered configuration ordered by type.
func All() []Config {
	types := Types()
	out := make([]Config, 0, len(types))
	for _, t := range types {
		out = append(out, registry[t].clone())
	}
	return out
}
