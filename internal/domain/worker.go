package domain

// QueueType distinguishes a worker bound to in-process persisted queue
// items from one polling an external command-based queue.
type QueueType string

const (
	QueuePersisted QueueType = "persisted"
	QueueExternal  QueueType = "external"
)

// WorkerStatus is the run state of a worker.
type WorkerStatus string

const (
	WorkerRunning WorkerStatus = "running"
	WorkerStopped WorkerStatus = "stopped"
)

// Worker is a runbook-declared consumer bound to a queue (spec.md §3).
// active/items/inflight_items/pending_takes are authoritative only in
// memory and reconstructed from events on boot (spec.md §5).
type Worker struct {
	Name        string       `json:"name"`
	Namespace   string       `json:"namespace"`
	RunbookHash string       `json:"runbook_hash"`
	Queue       string       `json:"queue"`
	QueueType   QueueType    `json:"queue_type"`
	Concurrency int          `json:"concurrency"`
	Status      WorkerStatus `json:"status"`

	Active        map[OwnerID]bool `json:"-"`
	Items         map[OwnerID]string `json:"-"`
	InflightItems map[string]bool  `json:"-"`
	PendingTakes  int              `json:"pending_takes"`

	// PendingItems holds the raw polled fields for an external-queue item
	// between WorkerTaking (claim) and WorkerTook (take outcome), so
	// dispatch doesn't need to re-poll to learn what it claimed.
	PendingItems map[string]map[string]interface{} `json:"-"`
}

func NewWorker(name, namespace string) *Worker {
	return &Worker{
		Name:          name,
		Namespace:     namespace,
		Status:        WorkerStopped,
		Active:        make(map[OwnerID]bool),
		Items:         make(map[OwnerID]string),
		InflightItems: make(map[string]bool),
		PendingItems:  make(map[string]map[string]interface{}),
	}
}

// HasActiveItem reports whether some owner this worker currently tracks is
// already working the given dedup key, so a re-poll doesn't double-claim
// an item whose job hasn't reached a terminal step yet.
func (w *Worker) HasActiveItem(itemKey string) bool {
	for _, key := range w.Items {
		if key == itemKey {
			return true
		}
	}
	return false
}

func (w *Worker) AvailableConcurrency() int {
	n := w.Concurrency - len(w.Active) - w.PendingTakes
	if n < 0 {
		return 0
	}
	return n
}

func (w *Worker) ScopedName() string {
	return ScopedName(w.Namespace, w.Name)
}
