package planner

import (
	"strconv"
	"strings"
)

// Assets holds the naming templates for static program audio. Templates may
// use {base}, {program} and {order}.
type Assets struct {
	BaseURL    string
	Intro      string
	Outro      string
	PromptCue  string
	Background string
}

// DefaultPromptCue names a prompt cue by program and prompt order.
const DefaultPromptCue = "{base}/{program}/{program}-{order}.mp3"

// AssetNamer resolves static asset references by naming convention.
type AssetNamer struct {
	assets Assets
}

func NewAssetNamer(a Assets) AssetNamer {
	a.BaseURL = strings.TrimRight(a.BaseURL, "/")
	if a.PromptCue == "" {
		a.PromptCue = DefaultPromptCue
	}
	return AssetNamer{assets: a}
}

func (n AssetNamer) Intro(program string) string {
	return n.expand(n.assets.Intro, program, 0)
}

func (n AssetNamer) Outro(program string) string {
	return n.expand(n.assets.Outro, program, 0)
}

func (n AssetNamer) PromptCue(program string, order int) string {
	return n.expand(n.assets.PromptCue, program, order)
}

func (n AssetNamer) Background(program string, order int) string {
	return n.expand(n.assets.Background, program, order)
}

func (n AssetNamer) expand(tmpl, program string, order int) string {
	if tmpl == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{base}", n.assets.BaseURL,
		"{program}", program,
		"{order}", strconv.Itoa(order),
	)
	return r.Replace(tmpl)
}
