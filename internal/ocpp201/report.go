package ocpp201

import (
	"encoding/json"
	"strings"
	"sync"
)

// ReportItem is one (component, variable) configuration row (SPEC_FULL.md §3).
type ReportItem struct {
	Key           string
	Component     map[string]any
	Value         *string
	Readonly      bool
	ReadonlySet   bool
	DataType      string
	Unit          string
	ValuesList    string
	Mutability    string
	AttributeType string
}

// reportBuffer accumulates NotifyReport rows across one multi-part cycle.
//
// Grounded on SPEC_FULL.md §4.D / §9: append-only during a cycle, dedup happens at
// read-out, and completion is a done-channel (closed exactly once) rather than a polled
// flag — the Python original polls a shared boolean; Go models the same "await
// completion" idea with a channel select, per a condition-variable/future equivalent.
type reportBuffer struct {
	mu      sync.Mutex
	items   []ReportItem
	done    bool
	doneCh  chan struct{}
	lastSeq int
}

func newReportBuffer() *reportBuffer {
	return &reportBuffer{doneCh: make(chan struct{})}
}

// reset clears the buffer for a new GetBaseReport cycle. A no-op if the buffer is
// already fresh (no frames appended since the last reset): the handler also calls this
// on every seqNo==0 frame, and re-allocating doneCh there would swap the channel out
// from under a waiter that captured it via doneChan() before that frame arrived.
func (b *reportBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 && !b.done {
		return
	}
	b.items = nil
	b.done = false
	b.doneCh = make(chan struct{})
	b.lastSeq = 0
}

// append ingests one NotifyReport frame's report_data rows.
func (b *reportBuffer) append(seqNo int, tbc bool, rows []ReportItem) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeq = seqNo
	b.items = append(b.items, rows...)

	if !tbc {
		b.done = true
		select {
		case <-b.doneCh:
			// already closed by a prior frame in this cycle
		default:
			close(b.doneCh)
		}
	}
}

// doneChan returns the channel closed when the cycle completes (tbc=false observed).
func (b *reportBuffer) doneChan() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doneCh
}

// snapshot returns a deduplicated copy of the buffer: later entries with a non-null
// value override earlier null-valued entries sharing the same key (SPEC_FULL.md §4.K).
func (b *reportBuffer) snapshot() []ReportItem {
	b.mu.Lock()
	items := append([]ReportItem(nil), b.items...)
	b.mu.Unlock()

	byKey := make(map[string]ReportItem)
	var order []string
	for _, it := range items {
		existing, ok := byKey[it.Key]
		if !ok {
			byKey[it.Key] = it
			order = append(order, it.Key)
			continue
		}
		if existing.Value == nil && it.Value != nil {
			byKey[it.Key] = it
		}
	}

	out := make([]ReportItem, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

// attributeValueFields is the closed, ordered set of spellings a variableAttribute's
// value field may use on the wire (SPEC_FULL.md §9).
var attributeValueFields = []string{"value", "attribute_value", "attributeValue"}

// tolerantAttributeValue probes attr for the first present, non-null, non-empty,
// non-literal-"null" value field, in the fixed field-name order above.
func tolerantAttributeValue(attr map[string]any) (string, bool) {
	for _, field := range attributeValueFields {
		raw, ok := attr[field]
		if !ok || raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		if s == "" || s == "null" {
			continue
		}
		return s, true
	}
	return "", false
}

// parseReportData turns one NotifyReport frame's report_data array into ReportItems,
// selecting the first variableAttribute entry with a usable value per item
// (SPEC_FULL.md §4.D step 2).
func parseReportData(raw json.RawMessage) []ReportItem {
	var rows []map[string]any
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil
	}

	items := make([]ReportItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, parseReportRow(row))
	}
	return items
}

func parseReportRow(row map[string]any) ReportItem {
	item := ReportItem{Readonly: true, ReadonlySet: false}

	variable, _ := row["variable"].(map[string]any)
	if name, ok := variable["name"].(string); ok {
		item.Key = name
	}
	if component, ok := row["component"].(map[string]any); ok {
		item.Component = component
	}
	if characteristics, ok := row["variableCharacteristics"].(map[string]any); ok {
		if dt, ok := characteristics["dataType"].(string); ok {
			item.DataType = dt
		}
		if unit, ok := characteristics["unit"].(string); ok {
			item.Unit = unit
		}
		if vl, ok := characteristics["valuesList"].(string); ok {
			item.ValuesList = vl
		}
	}

	attrs, _ := row["variableAttribute"].([]any)
	for _, a := range attrs {
		attr, ok := a.(map[string]any)
		if !ok {
			continue
		}
		val, found := tolerantAttributeValue(attr)
		if !found {
			continue
		}
		v := val
		item.Value = &v
		if mutability, ok := attr["mutability"].(string); ok {
			item.Mutability = mutability
			item.Readonly = strings.EqualFold(mutability, "ReadOnly")
			item.ReadonlySet = true
		}
		if at, ok := attr["type"].(string); ok {
			item.AttributeType = at
		}
		break
	}

	return item
}
