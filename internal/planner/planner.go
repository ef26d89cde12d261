// Package planner assembles the ordered segment plan for a program from its
// durably uploaded answers. It never mixes audio itself.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/gateway"
	logpkg "github.com/heyfeelings-official/little-microphones-sub001/internal/log"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/remote"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
)

var (
	// ErrNoRecordings means the scope has no uploaded answers.
	ErrNoRecordings = errors.New("no uploaded recordings")
	// ErrIncompleteUploads means some answers are still uploading.
	ErrIncompleteUploads = errors.New("recordings are still uploading")
)

// ValidationError explains why no plan could be produced.
type ValidationError struct {
	Scope   model.Scope
	Err     error
	Pending int
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrIncompleteUploads) {
		return fmt.Sprintf("plan %s: %d %v", e.Scope, e.Pending, e.Err)
	}
	return fmt.Sprintf("plan %s: %v", e.Scope, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) ErrorKind() string { return "validation" }

// Answer is one durable recording as seen by the planner.
type Answer struct {
	ID          string
	PromptOrder int
	CreatedAt   time.Time
	Ref         string
}

// Submitter renders plans.
type Submitter interface {
	Submit(ctx context.Context, plan model.Plan) (gateway.Result, error)
}

// Options configures a Planner.
type Options struct {
	// IncludeRemote merges answers listed by the remote store that this
	// device has no local record of.
	IncludeRemote bool
	Assets        Assets
	Logger        zerolog.Logger
}

// Planner builds and submits plans.
type Planner struct {
	store     store.Store
	remote    remote.Client
	submitter Submitter
	namer     AssetNamer
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time
}

func New(st store.Store, rc remote.Client, sub Submitter, opts Options) *Planner {
	return &Planner{
		store:     st,
		remote:    rc,
		submitter: sub,
		namer:     NewAssetNamer(opts.Assets),
		opts:      opts,
		logger:    opts.Logger.With().Str(logpkg.FieldComponent, "planner").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Plan collects the scope's durable answers and emits the ordered plan.
// Any pending or uploading recording fails the plan with
// ErrIncompleteUploads; failed recordings are skipped.
func (p *Planner) Plan(ctx context.Context, sc model.Scope) (model.Plan, error) {
	if err := sc.Validate(); err != nil {
		return model.Plan{}, err
	}
	answers, err := p.Collect(ctx, sc)
	if err != nil {
		return model.Plan{}, err
	}
	if len(answers) == 0 {
		return model.Plan{}, &ValidationError{Scope: sc, Err: ErrNoRecordings}
	}
	plan := Assemble(sc, answers, p.namer)
	plan.CreatedAt = p.now()

	p.logger.Info().
		Str(logpkg.FieldProgram, sc.Program).
		Str(logpkg.FieldInstance, sc.Instance).
		Int("prompts", plan.Prompts).
		Int("answers", plan.Answers).
		Msg("plan assembled")
	return plan, nil
}

// Collect returns the durable answers of the scope in no particular order.
func (p *Planner) Collect(ctx context.Context, sc model.Scope) ([]Answer, error) {
	local, err := p.store.List(ctx, store.ListParams{Scope: sc})
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(local))
	var answers []Answer
	pending := 0
	for _, r := range local {
		known[r.ID] = struct{}{}
		if r.UploadStatus.InFlight() {
			pending++
			continue
		}
		if !r.IsDurable() {
			continue
		}
		answers = append(answers, Answer{ID: r.ID, PromptOrder: r.PromptOrder, CreatedAt: r.CreatedAt, Ref: r.RemoteRef})
	}
	if pending > 0 {
		return nil, &ValidationError{Scope: sc, Err: ErrIncompleteUploads, Pending: pending}
	}

	if p.opts.IncludeRemote && p.remote != nil {
		extra, err := p.remoteAnswers(ctx, sc, known)
		if err != nil {
			p.logger.Warn().Err(err).Msg("remote listing failed, planning from local recordings only")
		}
		answers = append(answers, extra...)
	}
	return answers, nil
}

func (p *Planner) remoteAnswers(ctx context.Context, sc model.Scope, known map[string]struct{}) ([]Answer, error) {
	objects, err := p.remote.List(ctx, model.ScopePrefix(sc))
	if err != nil {
		return nil, err
	}
	var out []Answer
	for _, obj := range objects {
		id := remote.IDFromObjectName(obj.Name)
		if _, ok := known[id]; ok {
			continue
		}
		parsed, err := model.ParseID(id)
		if err != nil || parsed.Scope != sc || obj.URL == "" {
			p.logger.Debug().Str("name", obj.Name).Msg("ignoring unrecognised remote object")
			continue
		}
		known[id] = struct{}{}
		out = append(out, Answer{ID: id, PromptOrder: parsed.PromptOrder, CreatedAt: parsed.CreatedAt, Ref: obj.URL})
	}
	return out, nil
}

// Assemble orders answers by prompt and creation time and emits
// [intro, (cue, answers)..., outro]. The result does not depend on the order
// of the input.
func Assemble(sc model.Scope, answers []Answer, namer AssetNamer) model.Plan {
	sorted := append([]Answer(nil), answers...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.PromptOrder != b.PromptOrder {
			return a.PromptOrder < b.PromptOrder
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	plan := model.Plan{Program: sc.Program, Instance: sc.Instance, Answers: len(sorted)}
	plan.Segments = append(plan.Segments, model.Segment{
		Kind: model.SegmentStatic, Role: model.RoleIntro, Ref: namer.Intro(sc.Program),
	})
	for i := 0; i < len(sorted); {
		order := sorted[i].PromptOrder
		var refs []string
		for ; i < len(sorted) && sorted[i].PromptOrder == order; i++ {
			refs = append(refs, sorted[i].Ref)
		}
		plan.Prompts++
		plan.Segments = append(plan.Segments,
			model.Segment{
				Kind: model.SegmentStatic, Role: model.RolePromptCue, PromptOrder: order,
				Ref: namer.PromptCue(sc.Program, order),
			},
			model.Segment{
				Kind: model.SegmentCombine, Role: model.RoleAnswers, PromptOrder: order,
				AnswerRefs: refs, BackgroundRef: namer.Background(sc.Program, order),
			},
		)
	}
	plan.Segments = append(plan.Segments, model.Segment{
		Kind: model.SegmentStatic, Role: model.RoleOutro, Ref: namer.Outro(sc.Program),
	})
	return plan
}

// Submit hands a plan to the audio-processing gateway.
func (p *Planner) Submit(ctx context.Context, plan model.Plan) (gateway.Result, error) {
	if p.submitter == nil {
		return gateway.Result{}, gateway.ErrNotConfigured
	}
	res, err := p.submitter.Submit(ctx, plan)
	if err != nil {
		return gateway.Result{}, err
	}
	p.logger.Info().
		Str(logpkg.FieldProgram, plan.Program).
		Str(logpkg.FieldInstance, plan.Instance).
		Str("result_ref", res.ResultRef).
		Msg("plan submitted")
	return res, nil
}
