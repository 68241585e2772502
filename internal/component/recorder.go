package component

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/pkg/logger"
)

// maxRecordFileBytes triggers rotation of the journal file.
const maxRecordFileBytes = 64 << 20

// Record is one journal entry.
type Record struct {
	Event     *api.Event
	Timestamp uint64
}

func (r Record) encode() string {
	w := api.NewWriter()
	w.WriteUint64(r.Timestamp)
	w.WriteBytes(api.EncodeEvent(r.Event))
	return base64.StdEncoding.EncodeToString(w.Bytes())
}

// DecodeRecord parses one journal line.
func DecodeRecord(line string) (Record, error) {
	raw, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return Record{}, fmt.Errorf("recorder: decode line: %w", err)
	}
	r := api.NewReader(raw)
	ts := r.ReadUint64()
	evBytes := r.ReadBytes()
	if err := r.Close(); err != nil {
		return Record{}, err
	}
	ev, err := api.DecodeEvent(evBytes)
	if err != nil {
		return Record{}, err
	}
	return Record{Event: ev, Timestamp: ts}, nil
}

// RecordWriter is the journal sink.
type RecordWriter interface {
	Write(r Record) error
	Close() error
}

// MemoryRecordWriter keeps records in memory, for replay-driven tests.
type MemoryRecordWriter struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryRecordWriter creates an empty in-memory journal.
func NewMemoryRecordWriter() *MemoryRecordWriter {
	return &MemoryRecordWriter{}
}

func (w *MemoryRecordWriter) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, r)
	return nil
}

// Records returns the journal so far.
func (w *MemoryRecordWriter) Records() []Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Record(nil), w.records...)
}

func (w *MemoryRecordWriter) Close() error {
	return nil
}

// FileRecordWriter journals to a per-game file, one base64 line per record,
// rotating when the file grows too large.
type FileRecordWriter struct {
	path    string
	file    *os.File
	writer  *bufio.Writer
	written int64
}

// NewFileRecordWriter opens (or creates) the journal file under dir.
func NewFileRecordWriter(dir, gameAddr string) (*FileRecordWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("recorder: create records dir: %w", err)
	}
	path := filepath.Join(dir, gameAddr+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("recorder: open journal: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("recorder: stat journal: %w", err)
	}
	return &FileRecordWriter{
		path:    path,
		file:    file,
		writer:  bufio.NewWriter(file),
		written: info.Size(),
	}, nil
}

func (w *FileRecordWriter) Write(r Record) error {
	line := r.encode()
	if w.written+int64(len(line))+1 > maxRecordFileBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	n, err := fmt.Fprintln(w.writer, line)
	if err != nil {
		return err
	}
	w.written += int64(n)
	return w.writer.Flush()
}

func (w *FileRecordWriter) rotate() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(w.path, w.path+".1"); err != nil {
		return err
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w.file = file
	w.writer = bufio.NewWriter(file)
	w.written = 0
	return nil
}

func (w *FileRecordWriter) Close() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Recorder journals every broadcast event for replay and debugging.
type Recorder struct {
	writer RecordWriter
	log    *logrus.Entry
}

// NewRecorder wraps a journal sink as a bus component.
func NewRecorder(writer RecordWriter, gameAddr string, log *logger.Logger) *Recorder {
	return &Recorder{
		writer: writer,
		log:    log.WithComponent(gameAddr, "recorder"),
	}
}

// Start spawns the recorder task.
func (r *Recorder) Start() *Handle {
	h := newHandle("recorder", true, false)
	go func() {
		h.finish(r.run(h))
	}()
	return h
}

func (r *Recorder) run(h *Handle) CloseReason {
	defer func() {
		if err := r.writer.Close(); err != nil {
			r.log.Errorf("Failed to close journal: %v", err)
		}
	}()
	for f := range h.in {
		switch f := f.(type) {
		case *frame.Broadcast:
			if err := r.writer.Write(Record{Event: f.Event, Timestamp: f.Timestamp}); err != nil {
				r.log.Errorf("Failed to write record: %v", err)
			}

		case *frame.Shutdown:
			r.log.Info("Stopped")
			return Complete()
		}
	}
	return Complete()
}
