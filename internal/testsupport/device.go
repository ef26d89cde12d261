package testsupport

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// FakeDevice is a capture.Device that yields Data once and then blocks until
// the stream is closed.
type FakeDevice struct {
	DeviceName string
	Data       []byte
	OpenErr    error
	CloseErr   error

	opens atomic.Int32
}

func (d *FakeDevice) Name() string {
	if d.DeviceName == "" {
		return "fake"
	}
	return d.DeviceName
}

func (d *FakeDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	d.opens.Add(1)
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	return &fakeStream{data: d.Data, closeErr: d.CloseErr, closed: make(chan struct{})}, nil
}

// Opens returns how many times Open was called.
func (d *FakeDevice) Opens() int { return int(d.opens.Load()) }

type fakeStream struct {
	data     []byte
	closeErr error
	closed   chan struct{}
	once     sync.Once
}

func (s *fakeStream) Read(p []byte) (int, error) {
	if len(s.data) > 0 {
		n := copy(p, s.data)
		s.data = s.data[n:]
		return n, nil
	}
	<-s.closed
	return 0, io.EOF
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return s.closeErr
}
