package processing

import (
	"sync"
	"time"
)

// Stage is a phase of the document pipeline. Stages advance strictly
// forward; a document never returns to an earlier stage.
type Stage string

const (
	StageInitialized Stage = "initialized"
	StageExtracting  Stage = "extracting"
	StageChunking    Stage = "chunking"
	StageEmbedding   Stage = "embedding"
	StageStoring     Stage = "storing"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// Progress is an immutable snapshot of one document's pipeline state.
// ProcessingTime is filled in seconds once the document reaches a
// terminal stage.
type Progress struct {
	DocumentPath   string                 `json:"document_path"`
	DocumentID     string                 `json:"document_id"`
	Stage          Stage                  `json:"stage"`
	Percent        float64                `json:"percent"`
	Message        string                 `json:"message"`
	Error          string                 `json:"error,omitempty"`
	Stats          map[string]interface{} `json:"stats,omitempty"`
	StartTime      time.Time              `json:"start_time"`
	ProcessingTime float64                `json:"processing_time,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Tracker records pipeline progress for one document. All mutation goes
// through Update, Fail and SetStat under the lock, and the optional
// callback only ever sees defensive copies, so a slow or misbehaving
// observer cannot corrupt the state.
type Tracker struct {
	mutex    sync.Mutex
	progress Progress
	callback func(Progress)
}

// NewTracker starts a tracker at StageInitialized. callback may be nil.
func NewTracker(documentPath string, callback func(Progress)) *Tracker {
	now := time.Now()
	return &Tracker{
		progress: Progress{
			DocumentPath: documentPath,
			Stage:        StageInitialized,
			Stats:        map[string]interface{}{},
			StartTime:    now,
			UpdatedAt:    now,
		},
		callback: callback,
	}
}

// SetDocumentID records the identifier assigned at the start of a run.
func (t *Tracker) SetDocumentID(id string) {
	t.mutex.Lock()
	t.progress.DocumentID = id
	t.mutex.Unlock()
}

// Update advances the tracker to stage with a completion estimate and a
// human-readable message, then notifies the callback.
func (t *Tracker) Update(stage Stage, percent float64, message string) {
	t.mutex.Lock()
	t.progress.Stage = stage
	t.progress.Percent = percent
	t.progress.Message = message
	t.progress.UpdatedAt = time.Now()
	if stage == StageCompleted {
		t.progress.ProcessingTime = t.progress.UpdatedAt.Sub(t.progress.StartTime).Seconds()
	}
	snapshot := t.snapshotLocked()
	callback := t.callback
	t.mutex.Unlock()

	if callback != nil {
		callback(snapshot)
	}
}

// SetStat records one named counter on the progress state.
func (t *Tracker) SetStat(key string, value interface{}) {
	t.mutex.Lock()
	t.progress.Stats[key] = value
	t.mutex.Unlock()
}

// Fail moves the tracker to StageFailed with the error message and
// notifies the callback. The percent is left where it was so observers
// can see how far the document got.
func (t *Tracker) Fail(err error) {
	t.mutex.Lock()
	t.progress.Stage = StageFailed
	t.progress.Error = err.Error()
	t.progress.UpdatedAt = time.Now()
	t.progress.ProcessingTime = t.progress.UpdatedAt.Sub(t.progress.StartTime).Seconds()
	snapshot := t.snapshotLocked()
	callback := t.callback
	t.mutex.Unlock()

	if callback != nil {
		callback(snapshot)
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Progress {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Progress {
	p := t.progress
	p.Stats = make(map[string]interface{}, len(t.progress.Stats))
	for k, v := range t.progress.Stats {
		p.Stats[k] = v
	}
	return p
}
