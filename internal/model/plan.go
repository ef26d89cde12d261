package model

import "time"

// SegmentKind distinguishes fixed assets from mixer instructions.
type SegmentKind string

const (
	SegmentStatic  SegmentKind = "static"
	SegmentCombine SegmentKind = "combine"
)

// SegmentRole names the position a segment plays in the program.
type SegmentRole string

const (
	RoleIntro     SegmentRole = "intro"
	RolePromptCue SegmentRole = "prompt_cue"
	RoleAnswers   SegmentRole = "answers"
	RoleOutro     SegmentRole = "outro"
)

// Segment is one element of an ordered program plan. Static segments carry a
// single Ref; combine segments carry the ordered answers and the background
// track the mixer lays under them.
type Segment struct {
	Kind          SegmentKind `json:"kind" yaml:"kind"`
	Role          SegmentRole `json:"role" yaml:"role"`
	PromptOrder   int         `json:"prompt_order,omitempty" yaml:"prompt_order,omitempty"`
	Ref           string      `json:"ref,omitempty" yaml:"ref,omitempty"`
	AnswerRefs    []string    `json:"answer_refs,omitempty" yaml:"answer_refs,omitempty"`
	BackgroundRef string      `json:"background_ref,omitempty" yaml:"background_ref,omitempty"`
}

// Plan is the ordered segment list submitted to the audio-processing gateway.
type Plan struct {
	Program   string    `json:"program" yaml:"program"`
	Instance  string    `json:"instance" yaml:"instance"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Prompts   int       `json:"prompts" yaml:"prompts"`
	Answers   int       `json:"answers" yaml:"answers"`
	Segments  []Segment `json:"segments" yaml:"segments"`
}

// AnswerRefs returns every answer reference in play order.
func (p Plan) AnswerRefs() []string {
	var refs []string
	for _, s := range p.Segments {
		refs = append(refs, s.AnswerRefs...)
	}
	return refs
}
