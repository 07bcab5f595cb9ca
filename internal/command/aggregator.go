package command

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"csms-gateway/internal/ocpp201"
	"csms-gateway/internal/session"
)

const (
	reportDeadline = 10 * time.Second
	batchSize      = 24
)

// ConfigurationItem is one row of the assembled configuration_key response
// (SPEC_FULL.md §4.K step 9).
type ConfigurationItem struct {
	Key      string  `json:"key"`
	Value    *string `json:"value"`
	Readonly bool    `json:"readonly"`
}

// GetConfiguration implements the configuration aggregator (component K). v1.6 stations
// get a single passthrough GetConfiguration call; v2.0.1 stations drive the
// GetBaseReport -> NotifyReport* -> GetVariables (batched) orchestration.
func (s *Service) GetConfiguration(ctx context.Context, cpID string) (map[string]any, error) {
	sess, ok := s.registry.Get(cpID)
	if !ok {
		return nil, notConnected(cpID)
	}
	if sess.Settings().OCPPVersion != "2.0.1" {
		return s.getConfigurationV16(ctx, sess)
	}
	return s.getConfigurationV201(ctx, cpID, sess)
}

func (s *Service) getConfigurationV16(ctx context.Context, sess *session.Session) (map[string]any, error) {
	resp, err := sess.SendCall(ctx, "GetConfiguration", map[string]any{"key": []any{}})
	if err != nil {
		return nil, s.mapSendCallError(sess, err, "GetConfiguration")
	}
	var result map[string]any
	if err := json.Unmarshal(resp, &result); err != nil {
		result = map[string]any{"raw": string(resp)}
	}
	return result, nil
}

func (s *Service) getConfigurationV201(ctx context.Context, cpID string, sess *session.Session) (map[string]any, error) {
	handler, ok := sess.Handler().(*ocpp201.Handler)
	if !ok {
		return nil, badRequest("session %q has no ocpp 2.0.1 handler", cpID)
	}

	handler.ResetReportCycle()
	// Captured before GetBaseReport is even sent: the station's first NotifyReport frame
	// can race ahead of this call returning, and handler.ReportDone() must not be called
	// again afterward, since a concurrent seqNo==0 reset could otherwise hand back a
	// different channel than the one this cycle actually completes on.
	done := handler.ReportDone()

	statusResp, err := sess.SendCall(ctx, "GetBaseReport", map[string]any{
		"requestId":  55,
		"reportBase": "FullInventory",
	})
	if err != nil {
		return nil, s.mapSendCallError(sess, err, "GetBaseReport")
	}
	var baseStatus map[string]any
	_ = json.Unmarshal(statusResp, &baseStatus)

	s.awaitReportCompletion(ctx, done)

	items := handler.ReportSnapshot()

	items, err = s.fillMissingValues(ctx, sess, items)
	if err != nil {
		return nil, err
	}
	items, err = s.determineWritability(ctx, sess, items)
	if err != nil {
		return nil, err
	}

	out := make([]ConfigurationItem, 0, len(items))
	for _, it := range items {
		readonly := it.Readonly
		if !it.ReadonlySet {
			readonly = true // fail-safe default, SPEC_FULL.md §4.K step 7
		}
		out = append(out, ConfigurationItem{Key: it.Key, Value: it.Value, Readonly: readonly})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Key) < strings.ToLower(out[j].Key)
	})

	return map[string]any{
		"status":            baseStatus["status"],
		"configuration_key": out,
	}, nil
}

func (s *Service) awaitReportCompletion(ctx context.Context, done <-chan struct{}) {
	timer := time.NewTimer(reportDeadline)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("configuration aggregator: report deadline elapsed, proceeding with partial buffer")
	case <-ctx.Done():
	}
}

// fillMissingValues issues GetVariables in batches of 24 for items still lacking a
// value (SPEC_FULL.md §4.K step 5).
func (s *Service) fillMissingValues(ctx context.Context, sess *session.Session, items []ocpp201.ReportItem) ([]ocpp201.ReportItem, error) {
	var missing []int
	for i, it := range items {
		if it.Value == nil {
			missing = append(missing, i)
		}
	}
	if err := s.runVariableBatches(ctx, sess, items, missing, false); err != nil {
		return nil, err
	}
	return items, nil
}

// determineWritability re-issues GetVariables with attributeType=Target for every item,
// in batches of 24 (SPEC_FULL.md §4.K step 6).
func (s *Service) determineWritability(ctx context.Context, sess *session.Session, items []ocpp201.ReportItem) ([]ocpp201.ReportItem, error) {
	all := make([]int, len(items))
	for i := range items {
		all[i] = i
	}
	if err := s.runVariableBatches(ctx, sess, items, all, true); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) runVariableBatches(ctx context.Context, sess *session.Session, items []ocpp201.ReportItem, idxs []int, writability bool) error {
	for start := 0; start < len(idxs); start += batchSize {
		end := start + batchSize
		if end > len(idxs) {
			end = len(idxs)
		}
		batch := idxs[start:end]

		keys := make([]any, 0, len(batch))
		for _, idx := range batch {
			it := items[idx]
			entry := map[string]any{
				"component": it.Component,
				"variable":  map[string]any{"name": it.Key},
			}
			if writability {
				entry["attributeType"] = "Target"
			}
			keys = append(keys, entry)
		}

		resp, err := sess.SendCall(ctx, "GetVariables", map[string]any{"getVariableData": keys})
		if err != nil {
			return s.mapSendCallError(sess, err, "GetVariables")
		}
		applyVariableResults(items, batch, parseGetVariablesResult(resp), writability)
	}
	return nil
}

type getVariablesResultRow struct {
	Key    string
	Value  string
	Status string
}

func parseGetVariablesResult(resp json.RawMessage) []getVariablesResultRow {
	var parsed struct {
		GetVariableResult []map[string]any `json:"getVariableResult"`
	}
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return nil
	}
	out := make([]getVariablesResultRow, 0, len(parsed.GetVariableResult))
	for _, row := range parsed.GetVariableResult {
		var key string
		if v, ok := row["variable"].(map[string]any); ok {
			key, _ = v["name"].(string)
		}
		status, _ := row["attributeStatus"].(string)
		value, _ := row["attributeValue"].(string)
		out = append(out, getVariablesResultRow{Key: key, Value: value, Status: status})
	}
	return out
}

func applyVariableResults(items []ocpp201.ReportItem, idxs []int, results []getVariablesResultRow, writability bool) {
	byKey := make(map[string]getVariablesResultRow, len(results))
	for _, r := range results {
		byKey[r.Key] = r
	}
	for _, idx := range idxs {
		it := &items[idx]
		res, ok := byKey[it.Key]
		if !ok {
			continue
		}
		if writability {
			it.Readonly = res.Status != "Accepted"
			it.ReadonlySet = true
			continue
		}
		if res.Value != "" {
			v := res.Value
			it.Value = &v
		}
		if res.Status == "Rejected" || res.Status == "NotSupported" {
			it.Readonly = true
			it.ReadonlySet = true
		}
	}
}

func (s *Service) mapSendCallError(sess *session.Session, err error, action string) error {
	switch {
	case errors.Is(err, session.ErrTimeout):
		return gatewayTimeout(action)
	case errors.Is(err, session.ErrDisconnected), errors.Is(err, session.ErrSessionClosed):
		s.registry.Deregister(sess)
		return serviceUnavailable(action)
	default:
		return err
	}
}
