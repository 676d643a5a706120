// Package download fetches map assets from a FastDL mirror. A job tries the
// uncompressed .bsp first, falls back to .bsp.bz2, decompresses the fallback
// in memory and streams progress to whoever is listening.
package download

import (
	"compress/bzip2"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gitlab.com/kiverix/reployer/model"
)

const (
	extBsp = ".bsp"
	extBz2 = ".bsp.bz2"

	chunkSize        = 64 * 1024
	progressInterval = 250 * time.Millisecond
	fetchTimeout     = 15 * time.Second
	userAgent        = "Reployer/Go (+FastDL)"
)

var bytesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "reployer",
	Subsystem: "download",
	Name:      "bytes_total",
	Help:      "Counts the bytes fetched from FastDL mirrors per map",
}, []string{"map"})

// JobState is the lifecycle position of a download job.
type JobState string

const (
	StateBuildingURL   JobState = "building_url"
	StateFetchingBsp   JobState = "fetching_bsp"
	StateFetchingBz2   JobState = "fetching_bz2"
	StateDecompressing JobState = "decompressing"
	StateDone          JobState = "done"
	StateFailed        JobState = "failed"
	StateCancelled     JobState = "cancelled"
)

// Terminal status messages form a small closed set so the presentation
// layer never has to interpret raw errors.
const (
	msgCancelled  = "Cancelled"
	msgNotFound   = "Not found on FastDL (.bsp or .bsp.bz2)"
	msgDecompress = "Downloaded .bz2 but failed to decompress"
)

// Event is one update emitted by a running job.
type Event struct {
	State      JobState `json:"state"`
	Status     string   `json:"status,omitempty"`
	BytesDone  int64    `json:"bytes_done,omitempty"`
	BytesTotal int64    `json:"bytes_total,omitempty"`
	Speed      float64  `json:"speed,omitempty"`
	Terminal   bool     `json:"terminal"`
	Ok         bool     `json:"ok"`
	Message    string   `json:"message,omitempty"`
	FinalPath  string   `json:"final_path,omitempty"`
}

// Job downloads one map on its own dedicated goroutine. Events are delivered
// through the sink passed to Run; cancellation is cooperative and checked
// once per chunk.
type Job struct {
	mapName  string
	base     string
	template string
	outDir   string
	client   *http.Client
	cancel   int32
}

// NewJob builds a job. The template may contain {base} and {map}
// placeholders; an empty template takes the documented default.
func NewJob(mapName, fastdlBase, template, outDir string) *Job {
	template = strings.TrimSpace(template)
	if template == "" {
		template = model.DefaultTemplate
	}
	return &Job{
		mapName:  mapName,
		base:     model.NormalizeFastDL(fastdlBase),
		template: template,
		outDir:   outDir,
		client:   &http.Client{Timeout: fetchTimeout},
	}
}

// Cancel requests cooperative cancellation. Safe to call from any goroutine.
func (j *Job) Cancel() {
	atomic.StoreInt32(&j.cancel, 1)
}

func (j *Job) cancelled() bool {
	return atomic.LoadInt32(&j.cancel) != 0
}

// BuildURL derives the concrete URL for one of the two known extensions by
// extension-aware substitution on whatever the template resolves to.
func (j *Job) BuildURL(ext string) string {
	url := strings.ReplaceAll(j.template, "{base}", j.base)
	url = strings.ReplaceAll(url, "{map}", j.mapName)

	if ext == extBsp {
		switch {
		case strings.HasSuffix(url, extBsp):
			return url
		case strings.HasSuffix(url, extBz2):
			return strings.TrimSuffix(url, ".bz2")
		case strings.HasSuffix(url, "/"):
			return url + j.mapName + extBsp
		default:
			return url + extBsp
		}
	}

	switch {
	case strings.HasSuffix(url, extBz2):
		return url
	case strings.HasSuffix(url, extBsp):
		return url + ".bz2"
	case strings.HasSuffix(url, "/"):
		return url + j.mapName + extBz2
	default:
		return url + extBz2
	}
}

// Run executes the full cascade and emits every status, progress and
// terminal event into sink. It blocks until the job reaches a terminal
// state; callers start it on a dedicated goroutine.
func (j *Job) Run(sink func(Event)) {
	if err := os.MkdirAll(j.outDir, 0o755); err != nil {
		sink(Event{State: StateFailed, Terminal: true, Ok: false, Message: err.Error()})
		return
	}

	bspPath := filepath.Join(j.outDir, j.mapName+extBsp)
	bz2Path := filepath.Join(j.outDir, j.mapName+extBz2)

	sink(Event{State: StateBuildingURL, Status: "Resolving FastDL URLs"})
	urlBsp := j.BuildURL(extBsp)
	urlBz2 := j.BuildURL(extBz2)

	sink(Event{State: StateFetchingBsp, Status: "Trying .bsp: " + urlBsp})
	ok, msg := j.fetch(urlBsp, bspPath, StateFetchingBsp, sink)
	if ok {
		sink(Event{State: StateDone, Terminal: true, Ok: true,
			Message: fmt.Sprintf("Downloaded %s%s", j.mapName, extBsp), FinalPath: bspPath})
		return
	}
	if msg == msgCancelled {
		sink(Event{State: StateCancelled, Terminal: true, Ok: false, Message: msgCancelled})
		return
	}

	sink(Event{State: StateFetchingBz2, Status: "Trying .bsp.bz2: " + urlBz2})
	ok, msg = j.fetch(urlBz2, bz2Path, StateFetchingBz2, sink)
	if !ok {
		if msg == msgCancelled {
			sink(Event{State: StateCancelled, Terminal: true, Ok: false, Message: msgCancelled})
		} else {
			sink(Event{State: StateFailed, Terminal: true, Ok: false, Message: msgNotFound})
		}
		return
	}

	// Decompression runs to completion or fails outright; cancellation is
	// not checked here and the compressed file stays on disk either way.
	sink(Event{State: StateDecompressing, Status: "Decompressing bz2"})
	if err := decompress(bz2Path, bspPath); err != nil {
		sink(Event{State: StateFailed, Terminal: true, Ok: false,
			Message: fmt.Sprintf("%s: %s", msgDecompress, err)})
		return
	}

	sink(Event{State: StateDone, Terminal: true, Ok: true,
		Message: fmt.Sprintf("Downloaded & decompressed %s%s", j.mapName, extBsp), FinalPath: bspPath})
}

// fetch streams one URL to disk in fixed-size chunks, emitting throttled
// progress events. Any transport or HTTP error reports false so the caller
// can fall through to the next cascade variant.
func (j *Job) fetch(url, destPath string, state JobState, sink func(Event)) (bool, string) {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return false, err.Error()
	}
	request.Header.Set("User-Agent", userAgent)

	response, err := j.client.Do(request)
	if err != nil {
		return false, err.Error()
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("HTTP %d", response.StatusCode)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return false, err.Error()
	}
	defer file.Close()

	total := response.ContentLength
	if total < 0 {
		total = 0
	}

	var done int64
	lastEmit := time.Now()
	var lastBytes int64
	buffer := make([]byte, chunkSize)

	for {
		if j.cancelled() {
			return false, msgCancelled
		}

		n, readErr := response.Body.Read(buffer)
		if n > 0 {
			if _, writeErr := file.Write(buffer[:n]); writeErr != nil {
				return false, writeErr.Error()
			}
			done += int64(n)
			bytesCounter.WithLabelValues(j.mapName).Add(float64(n))

			now := time.Now()
			if elapsed := now.Sub(lastEmit); elapsed >= progressInterval {
				seconds := elapsed.Seconds()
				if seconds < 1e-6 {
					seconds = 1e-6
				}
				sink(Event{
					State:      state,
					BytesDone:  done,
					BytesTotal: total,
					Speed:      float64(done-lastBytes) / seconds,
				})
				lastEmit = now
				lastBytes = done
			}
		}
		if readErr == io.EOF {
			// A final read may deliver data and EOF together; honor a
			// cancellation that raced with it before declaring success.
			if j.cancelled() {
				return false, msgCancelled
			}
			break
		}
		if readErr != nil {
			return false, readErr.Error()
		}
	}

	sink(Event{State: state, BytesDone: done, BytesTotal: total, Speed: 0})
	return true, "OK"
}

// decompress inflates the whole compressed buffer in memory and writes the
// result to the final path.
func decompress(bz2Path, bspPath string) error {
	compressed, err := os.Open(bz2Path)
	if err != nil {
		return err
	}
	defer compressed.Close()

	data, err := ioutil.ReadAll(bzip2.NewReader(compressed))
	if err != nil {
		return err
	}

	return ioutil.WriteFile(bspPath, data, 0o644)
}
