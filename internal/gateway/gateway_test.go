package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/render", handler)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func samplePlan() model.Plan {
	return model.Plan{
		Program:  "spookyland",
		Instance: "lmid-1",
		Segments: []model.Segment{
			{Kind: model.SegmentStatic, Role: model.RoleIntro, Ref: "intro.mp3"},
			{Kind: model.SegmentCombine, Role: model.RoleAnswers, PromptOrder: 1, AnswerRefs: []string{"a.mp3"}, BackgroundRef: "bg.mp3"},
		},
	}
}

func TestSubmitSuccess(t *testing.T) {
	var got model.Plan
	var contentType string
	srv := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "resultRef": "https://cdn/out.mp3"})
	})

	res, err := New(srv.URL+"/render", 0).Submit(context.Background(), samplePlan())
	require.NoError(t, err)
	require.Equal(t, "https://cdn/out.mp3", res.ResultRef)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, samplePlan().Segments, got.Segments)
}

func TestSubmitMissingRefs(t *testing.T) {
	srv := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "assets missing", "missingRefs": []string{"a.mp3"}})
	})

	_, err := New(srv.URL+"/render", 0).Submit(context.Background(), samplePlan())
	var se *SubmitError
	require.True(t, errors.As(err, &se))
	require.Equal(t, []string{"a.mp3"}, se.MissingRefs)
	require.Equal(t, "not_found", se.ErrorKind())
	require.Contains(t, err.Error(), "assets missing")
}

func TestSubmitOKFalseWith200(t *testing.T) {
	srv := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "busy"})
	})

	_, err := New(srv.URL+"/render", 0).Submit(context.Background(), samplePlan())
	var se *SubmitError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "busy", se.Message)
}

func TestSubmitNonJSONError(t *testing.T) {
	srv := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := New(srv.URL+"/render", 0).Submit(context.Background(), samplePlan())
	var se *SubmitError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusBadGateway, se.Status)
	require.Equal(t, "transient", se.ErrorKind())
}

func TestSubmitNotConfigured(t *testing.T) {
	_, err := New("", 0).Submit(context.Background(), samplePlan())
	require.ErrorIs(t, err, ErrNotConfigured)
}
