package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"time"
)

// QueueItemStatus is the lifecycle status of a persisted queue item.
type QueueItemStatus string

const (
	QueueItemPending   QueueItemStatus = "pending"
	QueueItemActive    QueueItemStatus = "active"
	QueueItemCompleted QueueItemStatus = "completed"
	QueueItemFailed    QueueItemStatus = "failed"
	QueueItemDead      QueueItemStatus = "dead"
	QueueItemRetried   QueueItemStatus = "retried"
)

// QueueItem is a unit of work in a persisted queue (spec.md §3).
type QueueItem struct {
	ID           string            `json:"id"`
	Queue        string            `json:"queue"`
	Namespace    string            `json:"namespace"`
	Data         map[string]string `json:"data"`
	Status       QueueItemStatus   `json:"status"`
	Worker       string            `json:"worker,omitempty"`
	PushedAt     time.Time         `json:"pushed_at"`
	FailureCount int               `json:"failure_count"`
}

func (q *QueueItem) IsTerminal() bool {
	switch q.Status {
	case QueueItemCompleted, QueueItemFailed, QueueItemDead:
		return true
	default:
		return false
	}
}

// DedupKeyForItem computes an external-queue item's dedup key (spec.md
// §4.8.2): the item's "id" field if present, else its "number" field, else
// a stable hash of the item's JSON. Numeric fields are stringified so a
// JSON number like 6 becomes "6", never "unknown".
func DedupKeyForItem(item map[string]interface{}) string {
	if v, ok := item["id"]; ok {
		if s := StringifyJSONValue(v); s != "" {
			return s
		}
	}
	if v, ok := item["number"]; ok {
		if s := StringifyJSONValue(v); s != "" {
			return s
		}
	}
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]interface{}, len(item))
	for _, k := range keys {
		ordered[k] = item[k]
	}
	raw, _ := json.Marshal(ordered)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}

// NamespaceItemVars builds a job's var map from a queue item's fields,
// namespaced under the worker's first declared var name (spec.md §4.8.4:
// item {title,labels} + worker vars [bug] -> var.bug.title, var.bug.labels)
// so no bare item key ever collides with the job's own vars. A worker with
// no declared vars falls back to passing the fields through unnamespaced.
func NamespaceItemVars(varNames []string, fields map[string]string) map[string]string {
	if len(varNames) == 0 {
		return fields
	}
	prefix := varNames[0] + "."
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[prefix+k] = v
	}
	return out
}

// StringifyItemFields renders an external-queue item's raw JSON fields
// (string/number/bool) down to the map[string]string shape job vars use.
func StringifyItemFields(item map[string]interface{}) map[string]string {
	out := make(map[string]string, len(item))
	for k, v := range item {
		out[k] = StringifyJSONValue(v)
	}
	return out
}

// StringifyJSONValue renders a JSON-decoded scalar as a dedup-key-stable
// string. encoding/json decodes all JSON numbers as float64, so an integer
// field must be stringified via its integral value (strconv.FormatInt),
// never via fmt's default float formatting, or 1000000 would come out "1e+06".
func StringifyJSONValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
