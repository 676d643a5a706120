package download

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type eventLog struct {
	locker sync.Mutex
	events []Event
	done   chan Event
}

func newEventLog() *eventLog {
	return &eventLog{done: make(chan Event, 1)}
}

func (l *eventLog) sink(event Event) {
	l.locker.Lock()
	l.events = append(l.events, event)
	l.locker.Unlock()

	if event.Terminal {
		l.done <- event
	}
}

func (l *eventLog) all() []Event {
	l.locker.Lock()
	defer l.locker.Unlock()
	return append([]Event(nil), l.events...)
}

func TestBuildURL(t *testing.T) {
	cases := []struct {
		template string
		wantBsp  string
		wantBz2  string
	}{
		{
			"{base}/maps/{map}.bsp",
			"http://dl.example/maps/ask.bsp",
			"http://dl.example/maps/ask.bsp.bz2",
		},
		{
			"{base}/maps/{map}.bsp.bz2",
			"http://dl.example/maps/ask.bsp",
			"http://dl.example/maps/ask.bsp.bz2",
		},
		{
			"{base}/maps/",
			"http://dl.example/maps/ask.bsp",
			"http://dl.example/maps/ask.bsp.bz2",
		},
		{
			"{base}/maps/{map}",
			"http://dl.example/maps/ask.bsp",
			"http://dl.example/maps/ask.bsp.bz2",
		},
	}

	for _, c := range cases {
		job := NewJob("ask", "http://dl.example/", c.template, "")
		assert.Equal(t, c.wantBsp, job.BuildURL(".bsp"), "template %q", c.template)
		assert.Equal(t, c.wantBz2, job.BuildURL(".bsp.bz2"), "template %q", c.template)
	}
}

func TestDirectBspDownload(t *testing.T) {
	payload := []byte("plain bsp content")
	mirror := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == "/maps/ask.bsp" {
			_, _ = writer.Write(payload)
			return
		}
		writer.WriteHeader(http.StatusNotFound)
	}))
	defer mirror.Close()

	outDir := t.TempDir()
	events := newEventLog()

	job := NewJob("ask", mirror.URL, "{base}/maps/{map}.bsp", outDir)
	job.Run(events.sink)

	terminal := <-events.done
	assert.True(t, terminal.Ok)
	assert.Equal(t, StateDone, terminal.State)
	assert.Equal(t, filepath.Join(outDir, "ask.bsp"), terminal.FinalPath)

	written, err := ioutil.ReadFile(terminal.FinalPath)
	assert.NoError(t, err)
	assert.Equal(t, payload, written)
}

func TestBz2FallbackDecompresses(t *testing.T) {
	var requestedLocker sync.Mutex
	var requested []string
	mirror := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requestedLocker.Lock()
		requested = append(requested, request.URL.Path)
		requestedLocker.Unlock()
		if request.URL.Path == "/maps/ask.bsp.bz2" {
			_, _ = writer.Write(bz2Fixture)
			return
		}
		writer.WriteHeader(http.StatusNotFound)
	}))
	defer mirror.Close()

	outDir := t.TempDir()
	events := newEventLog()

	job := NewJob("ask", mirror.URL, "{base}/maps/{map}.bsp", outDir)
	job.Run(events.sink)

	terminal := <-events.done
	assert.True(t, terminal.Ok)
	assert.Equal(t, StateDone, terminal.State)

	requestedLocker.Lock()
	assert.Equal(t, []string{"/maps/ask.bsp", "/maps/ask.bsp.bz2"}, requested)
	requestedLocker.Unlock()

	// The decompressed .bsp is the final artifact; the compressed copy also
	// stays on disk.
	written, err := ioutil.ReadFile(filepath.Join(outDir, "ask.bsp"))
	assert.NoError(t, err)
	assert.Equal(t, bz2Payload(), written)

	_, err = os.Stat(filepath.Join(outDir, "ask.bsp.bz2"))
	assert.NoError(t, err)
}

func TestBothVariantsMissing(t *testing.T) {
	mirror := httptest.NewServer(http.NotFoundHandler())
	defer mirror.Close()

	events := newEventLog()
	job := NewJob("ask", mirror.URL, "{base}/maps/{map}.bsp", t.TempDir())
	job.Run(events.sink)

	terminal := <-events.done
	assert.False(t, terminal.Ok)
	assert.Equal(t, StateFailed, terminal.State)
	assert.Equal(t, "Not found on FastDL (.bsp or .bsp.bz2)", terminal.Message)
}

func TestCorruptBz2KeepsCompressedFile(t *testing.T) {
	mirror := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == "/maps/ask.bsp.bz2" {
			_, _ = writer.Write([]byte("this is not bzip2 data"))
			return
		}
		writer.WriteHeader(http.StatusNotFound)
	}))
	defer mirror.Close()

	outDir := t.TempDir()
	events := newEventLog()

	job := NewJob("ask", mirror.URL, "{base}/maps/{map}.bsp", outDir)
	job.Run(events.sink)

	terminal := <-events.done
	assert.False(t, terminal.Ok)
	assert.Equal(t, StateFailed, terminal.State)
	assert.Contains(t, terminal.Message, "failed to decompress")

	_, err := os.Stat(filepath.Join(outDir, "ask.bsp.bz2"))
	assert.NoError(t, err, "compressed file is kept for diagnosis")
}

func TestCancelMidStreamSkipsFallback(t *testing.T) {
	firstChunk := make(chan struct{})
	proceed := make(chan struct{})
	var bz2Locker sync.Mutex
	var bz2Requests int

	mirror := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == "/maps/ask.bsp.bz2" {
			bz2Locker.Lock()
			bz2Requests++
			bz2Locker.Unlock()
			writer.WriteHeader(http.StatusNotFound)
			return
		}

		chunk := make([]byte, chunkSize)
		_, _ = writer.Write(chunk)
		if flusher, ok := writer.(http.Flusher); ok {
			flusher.Flush()
		}
		close(firstChunk)
		<-proceed
		_, _ = writer.Write(chunk)
	}))
	defer mirror.Close()

	events := newEventLog()
	job := NewJob("ask", mirror.URL, "{base}/maps/{map}.bsp", t.TempDir())

	go job.Run(events.sink)

	<-firstChunk
	job.Cancel()
	close(proceed)

	terminal := <-events.done
	assert.False(t, terminal.Ok)
	assert.Equal(t, StateCancelled, terminal.State)
	assert.Equal(t, "Cancelled", terminal.Message)

	bz2Locker.Lock()
	assert.Equal(t, 0, bz2Requests, "cancellation short-circuits the cascade")
	bz2Locker.Unlock()
}

func TestProgressEventsCarryTotals(t *testing.T) {
	payload := make([]byte, 3*chunkSize)
	mirror := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write(payload)
	}))
	defer mirror.Close()

	events := newEventLog()
	job := NewJob("ask", mirror.URL, "{base}/maps/{map}.bsp", t.TempDir())
	job.Run(events.sink)

	<-events.done

	var final *Event
	for _, event := range events.all() {
		if event.State == StateFetchingBsp && event.BytesDone > 0 {
			copied := event
			final = &copied
		}
	}

	// The stream always ends with one progress event at speed zero carrying
	// the full byte count.
	assert.NotNil(t, final)
	assert.Equal(t, int64(len(payload)), final.BytesDone)
	assert.Equal(t, int64(len(payload)), final.BytesTotal)
	assert.Equal(t, float64(0), final.Speed)
}
