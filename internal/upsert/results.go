package upsert

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/compare"
)

// Error reasons reported in Result.ErrorReason
const (
	ReasonNoData          = "No Data"
	ReasonBadRequest      = "Bad Request"
	ReasonNotAllowed      = "Not Allowed"
	ReasonUpdateNotFound  = "Data to update Not Found"
	ReasonExistsAlready   = "Data exists already"
	ReasonNotFound        = "Data Not Found"
	ReasonInternalError   = "Internal Error"
	ReasonDuplicateInBulk = "Duplicate Id in batch"
)

// Result is the outcome of writing or deleting one record
type Result struct {
	ID                 string        `json:"id"`
	Type               string        `json:"odhtype"`
	Operation          string        `json:"operation"`
	Created            int           `json:"created"`
	Updated            int           `json:"updated"`
	Deleted            int           `json:"deleted"`
	Error              int           `json:"error"`
	ErrorReason        string        `json:"errorreason,omitempty"`
	CompareObject      bool          `json:"compareobject"`
	ObjectChanged      *int          `json:"objectchanged"`
	ObjectImageChanged *int          `json:"objectimagechanged"`
	Changes            compare.Patch `json:"changes,omitempty"`
	PushChannels       []string      `json:"pushchannels"`
}

// Failed reports whether the result carries an error
func (r Result) Failed() bool {
	return r.Error > 0
}

// Unchanged reports whether an update was skipped or found no semantic change
func (r Result) Unchanged() bool {
	return r.Error == 0 && r.Created == 0 && r.Deleted == 0 && r.ObjectChanged != nil && *r.ObjectChanged == 0
}

func errorResult(id, typ string, op string, reason string) Result {
	return Result{ID: id, Type: typ, Operation: op, Error: 1, ErrorReason: reason, PushChannels: []string{}}
}

// BatchResult aggregates the outcome of a batch upsert
type BatchResult struct {
	Success        bool     `json:"success"`
	ErrorMessage   string   `json:"errormessage,omitempty"`
	TotalProcessed int      `json:"totalprocessed"`
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	Unchanged      int      `json:"unchanged"`
	Errors         int      `json:"errors"`
	Results        []Result `json:"results,omitempty"`
}

// BatchValidationError aborts a transactional batch. Errors is keyed by the
// item position ("[i]").
type BatchValidationError struct {
	Errors map[string]string
}

func (e *BatchValidationError) Error() string {
	keys := make([]string, 0, len(e.Errors))
	for k := range e.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Errors[k]))
	}
	return "batch validation failed: " + strings.Join(parts, "; ")
}

func indexKey(i int) string {
	return fmt.Sprintf("[%d]", i)
}

// UpdateDetail sums the outcome of many writes
type UpdateDetail struct {
	Created            int      `json:"created"`
	Updated            int      `json:"updated"`
	Unchanged          int      `json:"unchanged"`
	Deleted            int      `json:"deleted"`
	Errors             int      `json:"error"`
	ObjectChanged      int      `json:"objectchanged"`
	ObjectImageChanged int      `json:"objectimagechanged"`
	PushChannels       []string `json:"pushchannels,omitempty"`
}

// Add counts one result
func (d *UpdateDetail) Add(r Result) {
	switch {
	case r.Failed():
		d.Errors++
	case r.Created > 0:
		d.Created += r.Created
	case r.Deleted > 0:
		d.Deleted += r.Deleted
	case r.Unchanged():
		d.Unchanged++
	default:
		d.Updated += r.Updated
	}
	if r.ObjectChanged != nil {
		d.ObjectChanged += *r.ObjectChanged
	}
	if r.ObjectImageChanged != nil {
		d.ObjectImageChanged += *r.ObjectImageChanged
	}
	d.PushChannels = union(d.PushChannels, r.PushChannels)
}

// Merge adds the counts of another detail
func (d *UpdateDetail) Merge(o UpdateDetail) {
	d.Created += o.Created
	d.Updated += o.Updated
	d.Unchanged += o.Unchanged
	d.Deleted += o.Deleted
	d.Errors += o.Errors
	d.ObjectChanged += o.ObjectChanged
	d.ObjectImageChanged += o.ObjectImageChanged
	d.PushChannels = union(d.PushChannels, o.PushChannels)
}

// DetailOf sums a batch result
func DetailOf(b BatchResult) UpdateDetail {
	var d UpdateDetail
	for _, r := range b.Results {
		d.Add(r)
	}
	return d
}

// union returns the distinct elements of a followed by those of b, in order
func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

func intPtr(v int) *int { return &v }
