package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	srv     *httptest.Server
	auth    string
}

func newFakeObjectStore(t *testing.T) *fakeObjectStore {
	t.Helper()
	f := &fakeObjectStore{objects: map[string][]byte{}}

	r := chi.NewRouter()
	r.Put("/objects/{name}", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = req.Header.Get("Authorization")
		name := chi.URLParam(req, "name")
		body, _ := io.ReadAll(req.Body)
		f.objects[name] = body
		_ = json.NewEncoder(w).Encode(map[string]string{"url": f.srv.URL + "/objects/" + name})
	})
	r.Delete("/objects/{name}", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		name := chi.URLParam(req, "name")
		if _, ok := f.objects[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.objects, name)
		w.WriteHeader(http.StatusNoContent)
	})
	r.Head("/objects/{name}", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.objects[chi.URLParam(req, "name")]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/objects", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		prefix := req.URL.Query().Get("prefix")
		out := []Object{}
		for name := range f.objects {
			if strings.HasPrefix(name, prefix) {
				out = append(out, Object{Name: name, URL: f.srv.URL + "/objects/" + name, ModifiedAt: time.Unix(0, 0).UTC()})
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		_ = json.NewEncoder(w).Encode(out)
	})
	r.Get("/broken", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeObjectStore) base() string { return f.srv.URL + "/objects" }

func (f *fakeObjectStore) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth
}

func TestHTTPClientPutHeadDelete(t *testing.T) {
	ctx := context.Background()
	f := newFakeObjectStore(t)
	c := NewHTTPClient(f.base(), "secret", time.Second)

	ref, err := c.Put(ctx, "spooky_i1_q1_X.mp3", []byte("audio"))
	require.NoError(t, err)
	require.Equal(t, f.base()+"/spooky_i1_q1_X.mp3", ref)
	require.Equal(t, "Bearer secret", f.lastAuth())

	require.NoError(t, c.Head(ctx, ref))

	require.NoError(t, c.Delete(ctx, "spooky_i1_q1_X.mp3"))
	err = c.Head(ctx, ref)
	require.ErrorIs(t, err, ErrNotFound)

	err = c.Delete(ctx, "spooky_i1_q1_X.mp3")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPClientList(t *testing.T) {
	ctx := context.Background()
	f := newFakeObjectStore(t)
	c := NewHTTPClient(f.base(), "", 0)

	for _, name := range []string{"p_a_q1_1.mp3", "p_a_q2_2.mp3", "p_b_q1_3.mp3"} {
		_, err := c.Put(ctx, name, []byte{1})
		require.NoError(t, err)
	}

	objs, err := c.List(ctx, "p_a_")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	require.Equal(t, "p_a_q1_1.mp3", objs[0].Name)

	none, err := c.List(ctx, "zzz_")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestHTTPClientStatusError(t *testing.T) {
	f := newFakeObjectStore(t)
	c := NewHTTPClient(f.srv.URL+"/broken", "", time.Second)

	_, err := c.List(context.Background(), "")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusBadGateway, se.Code)
	require.Equal(t, "transient", se.ErrorKind())
	require.Contains(t, err.Error(), "upstream down")
}

func TestObjectName(t *testing.T) {
	require.Equal(t, "abc.mp3", ObjectName("abc", ".mp3"))
	require.Equal(t, "abc", ObjectName("abc", ""))
	require.Equal(t, "abc", IDFromObjectName("abc.mp3"))
	require.Equal(t, "abc", IDFromObjectName("https://cdn.example.com/x/abc.mp3"))
}
