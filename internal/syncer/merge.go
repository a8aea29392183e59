package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/models"
)

// reconcileItem применяет лестницу разрешения для записи, существующей
// на обеих сторонах:
//  1. строго более свежий updatedAt побеждает (push или pull);
//  2. при равных timestamps одинаковый хеш - no-op;
//  3. без CRDT снапшота с обеих сторон разногласие при равных
//     timestamps - конфликт, отдается наружу как данные;
//  4. с CRDT: причинный порядок векторных часов, при конкурентных
//     обновлениях - структурное слияние по типу CRDT с записью
//     результата на обе стороны.
func (e *Engine) reconcileItem(ctx context.Context, id string, remoteMeta *models.SyncItem, opts SyncOptions, result *SyncResult) {
	localItem, err := e.local.Get(ctx, id)
	if err != nil {
		e.recordError(result, id, err)
		return
	}

	if opts.Force {
		// Force: локальная сторона побеждает безусловно
		if err := e.pushItem(ctx, localItem, true); err != nil {
			e.recordError(result, id, err)
		} else {
			result.Pushed = append(result.Pushed, id)
		}
		return
	}

	switch {
	case remoteMeta.UpdatedAt.After(localItem.UpdatedAt):
		if err := e.pullItem(ctx, remoteMeta, true); err != nil {
			e.recordError(result, id, err)
		} else {
			result.Pulled = append(result.Pulled, id)
		}

	case localItem.UpdatedAt.After(remoteMeta.UpdatedAt):
		if err := e.pushItem(ctx, localItem, true); err != nil {
			e.recordError(result, id, err)
		} else {
			result.Pushed = append(result.Pushed, id)
		}

	default:
		e.reconcileEqualTimestamps(ctx, localItem, remoteMeta, result)
	}
}

// reconcileEqualTimestamps разрешает записи с одинаковым updatedAt.
func (e *Engine) reconcileEqualTimestamps(ctx context.Context, localItem, remoteMeta *models.SyncItem, result *SyncResult) {
	id := localItem.ID

	if contentEqual(localItem, remoteMeta) {
		e.logger.Debug("Items are identical, nothing to do", "item_id", id)
		return
	}

	if localItem.CRDT == nil || remoteMeta.CRDT == nil {
		// Без CRDT определить победителя нечем: конфликт наружу
		e.logger.Info("Conflict detected: equal timestamps, no CRDT state", "item_id", id)
		result.Conflicts = append(result.Conflicts, id)
		return
	}

	switch localItem.CRDT.Clock.Compare(remoteMeta.CRDT.Clock) {
	case crdt.OrderingDominates:
		if err := e.pushItem(ctx, localItem, true); err != nil {
			e.recordError(result, id, err)
		} else {
			result.Pushed = append(result.Pushed, id)
		}

	case crdt.OrderingDominated:
		if err := e.pullItem(ctx, remoteMeta, true); err != nil {
			e.recordError(result, id, err)
		} else {
			result.Pulled = append(result.Pulled, id)
		}

	case crdt.OrderingEqual:
		// Одинаковые часы с разным содержимым - нарушенный снапшот
		e.logger.Warn("Conflict detected: equal clocks, different content", "item_id", id)
		result.Conflicts = append(result.Conflicts, id)

	case crdt.OrderingConcurrent:
		merged, err := e.mergeConcurrent(ctx, localItem, remoteMeta)
		if err != nil {
			e.recordError(result, id, err)
			return
		}
		result.Merged = append(result.Merged, merged.ID)
	}
}

// mergeConcurrent структурно сливает конкурентные версии записи по типу
// ее CRDT и записывает результат на обе стороны. Обе реплики, выполнив
// это слияние независимо, сходятся к одному состоянию.
func (e *Engine) mergeConcurrent(ctx context.Context, localItem, remoteMeta *models.SyncItem) (*models.SyncItem, error) {
	if localItem.CRDT.Kind != remoteMeta.CRDT.Kind {
		return nil, fmt.Errorf("crdt kind mismatch for item %s: local %s, remote %s",
			localItem.ID, localItem.CRDT.Kind, remoteMeta.CRDT.Kind)
	}

	remoteContent, err := e.fetchContent(ctx, remoteMeta)
	if err != nil {
		return nil, err
	}

	merged := localItem.Clone()
	merged.CRDT.Clock.Merge(remoteMeta.CRDT.Clock)

	switch localItem.CRDT.Kind {
	case models.CRDTKindLWWRegister:
		if err := e.mergeLWWContent(merged, localItem, remoteMeta, remoteContent); err != nil {
			return nil, err
		}

	case models.CRDTKindGCounter:
		if err := mergeGCounterContent(merged, localItem, remoteMeta); err != nil {
			return nil, err
		}

	case models.CRDTKindORSet:
		if err := mergeORSetContent(merged, localItem, remoteMeta); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown crdt kind: %s", localItem.CRDT.Kind)
	}

	if merged.Version <= remoteMeta.Version {
		merged.Version = remoteMeta.Version
	}

	if err := e.local.Save(ctx, merged); err != nil {
		return nil, fmt.Errorf("failed to save merged item: %w", err)
	}
	if err := e.pushItem(ctx, merged, true); err != nil {
		return nil, fmt.Errorf("failed to push merged item: %w", err)
	}

	e.logger.Info("Items merged",
		"item_id", merged.ID,
		"kind", merged.CRDT.Kind)

	return merged, nil
}

// mergeLWWContent сливает записи под LWW-регистром: побеждающее
// состояние определяет, чье содержимое сохраняется.
func (e *Engine) mergeLWWContent(merged, localItem, remoteMeta *models.SyncItem, remoteContent []byte) error {
	var localState, remoteState crdt.LWWRegisterState
	if err := json.Unmarshal(localItem.CRDT.State, &localState); err != nil {
		return fmt.Errorf("failed to unmarshal local lww state: %w", err)
	}
	if err := json.Unmarshal(remoteMeta.CRDT.State, &remoteState); err != nil {
		return fmt.Errorf("failed to unmarshal remote lww state: %w", err)
	}

	winner := crdt.MergeLWWStates(localState, remoteState, e.cfg.TieBias)

	state, err := json.Marshal(winner)
	if err != nil {
		return fmt.Errorf("failed to marshal merged lww state: %w", err)
	}
	merged.CRDT.State = state

	if winner.Timestamp == remoteState.Timestamp && winner.NodeID == remoteState.NodeID {
		merged.Content = remoteContent
		merged.ContentHash = remoteMeta.ContentHash
		merged.ModifiedBy = remoteMeta.ModifiedBy
	}
	// Иначе остается локальное содержимое из Clone
	return nil
}

// mergeGCounterContent сливает счетчики по-узловым максимумом.
// Сериализованное состояние счетчика и есть содержимое записи.
func mergeGCounterContent(merged, localItem, remoteMeta *models.SyncItem) error {
	var localState, remoteState crdt.GCounterState
	if err := json.Unmarshal(localItem.CRDT.State, &localState); err != nil {
		return fmt.Errorf("failed to unmarshal local counter state: %w", err)
	}
	if err := json.Unmarshal(remoteMeta.CRDT.State, &remoteState); err != nil {
		return fmt.Errorf("failed to unmarshal remote counter state: %w", err)
	}

	mergedState := crdt.MergeGCounterStates(localState, remoteState)
	return applyMergedState(merged, mergedState)
}

// mergeORSetContent сливает множества объединением тегов и tombstones.
func mergeORSetContent(merged, localItem, remoteMeta *models.SyncItem) error {
	var localState, remoteState crdt.ORSetState
	if err := json.Unmarshal(localItem.CRDT.State, &localState); err != nil {
		return fmt.Errorf("failed to unmarshal local set state: %w", err)
	}
	if err := json.Unmarshal(remoteMeta.CRDT.State, &remoteState); err != nil {
		return fmt.Errorf("failed to unmarshal remote set state: %w", err)
	}

	mergedState := crdt.MergeORSetStates(localState, remoteState)
	return applyMergedState(merged, mergedState)
}

// applyMergedState записывает слитое CRDT состояние и как снапшот,
// и как содержимое записи.
func applyMergedState(merged *models.SyncItem, state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal merged state: %w", err)
	}

	merged.CRDT.State = data
	merged.Content = data
	merged.ContentHash = models.HashContent(data)
	return nil
}

// contentEqual сравнивает содержимое записей по хешам, при их
// отсутствии - по байтам.
func contentEqual(a, b *models.SyncItem) bool {
	if a.ContentHash != "" && b.ContentHash != "" {
		return a.ContentHash == b.ContentHash
	}
	return bytes.Equal(a.Content, b.Content)
}
