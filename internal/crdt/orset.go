package crdt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

// ORSet представляет Observed-Remove Set CRDT с семантикой add-wins.
// Каждый Add чеканит свежий глобально-уникальный tag и привязывает его
// к ключу элемента. Remove перемещает все наблюдаемые live tags ключа
// в tombstones. Элемент состоит в множестве, пока у него есть хотя бы
// один live (не затомбстоненный) tag.
//
// Tombstones никогда не удаляются: монотонный рост - цена отсутствия
// координации. Конкурентные Add и Remove одного ключа разрешаются в
// пользу Add, потому что tag, которого удаляющий узел не наблюдал,
// не попадает в его tombstones.
type ORSet struct {
	elements   map[string]*orSetElement
	tombstones mapset.Set[string]
	nodeID     string
	mu         sync.RWMutex
}

type orSetElement struct {
	value json.RawMessage
	tags  mapset.Set[string]
}

// ORSetElementState представляет сериализуемое состояние одного элемента.
type ORSetElementState struct {
	Value json.RawMessage `json:"value"`
	Tags  []string        `json:"tags"`
}

// ORSetState представляет сериализуемое состояние множества.
type ORSetState struct {
	Elements   map[string]ORSetElementState `json:"elements"`
	Tombstones []string                     `json:"tombstones"`
}

// NewORSet создает новое пустое множество для заданного узла.
func NewORSet(nodeID string) *ORSet {
	return &ORSet{
		elements:   make(map[string]*orSetElement),
		tombstones: mapset.NewSet[string](),
		nodeID:     nodeID,
	}
}

// Add добавляет элемент с заданным ключом и значением.
// Чеканит новый уникальный tag и возвращает его.
func (s *ORSet) Add(key string, value json.RawMessage) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag := uuid.New().String()

	el, ok := s.elements[key]
	if !ok {
		el = &orSetElement{tags: mapset.NewSet[string]()}
		s.elements[key] = el
	}
	el.value = append(json.RawMessage(nil), value...)
	el.tags.Add(tag)

	return tag
}

// Remove удаляет элемент: все его live tags перемещаются в tombstones.
// Если у ключа нет live tags, это no-op, возвращающий false.
func (s *ORSet) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.elements[key]
	if !ok {
		return false
	}

	live := el.tags.Difference(s.tombstones)
	if live.Cardinality() == 0 {
		return false
	}

	for tag := range live.Iter() {
		s.tombstones.Add(tag)
	}
	return true
}

// Contains проверяет членство: элемент в множестве, если у него есть
// хотя бы один live tag.
func (s *ORSet) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.liveTagCount(key) > 0
}

// Get возвращает значение элемента и признак членства.
func (s *ORSet) Get(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.liveTagCount(key) == 0 {
		return nil, false
	}
	el := s.elements[key]
	return append(json.RawMessage(nil), el.value...), true
}

// Keys возвращает отсортированные ключи всех live элементов.
func (s *ORSet) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.elements))
	for key := range s.elements {
		if s.liveTagCount(key) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Size возвращает количество live элементов.
func (s *ORSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.elements {
		if s.liveTagCount(key) > 0 {
			count++
		}
	}
	return count
}

// liveTagCount возвращает число live tags ключа. Вызывается под мьютексом.
func (s *ORSet) liveTagCount(key string) int {
	el, ok := s.elements[key]
	if !ok {
		return 0
	}
	return el.tags.Difference(s.tombstones).Cardinality()
}

// Merge объединяет множество с удаленным состоянием:
// tags по каждому ключу и tombstones сливаются объединением, значение
// общего ключа разрешается тотальным порядком байтов (см. mergeValue).
// Возвращает true, если локальное состояние изменилось.
// Операция коммутативна, ассоциативна и идемпотентна.
func (s *ORSet) Merge(remote ORSetState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false

	for key, remoteEl := range remote.Elements {
		el, ok := s.elements[key]
		if !ok {
			el = &orSetElement{
				value: append(json.RawMessage(nil), remoteEl.Value...),
				tags:  mapset.NewSet[string](),
			}
			s.elements[key] = el
		} else if winner := mergeValue(el.value, remoteEl.Value); !bytes.Equal(winner, el.value) {
			el.value = append(json.RawMessage(nil), winner...)
			changed = true
		}
		for _, tag := range remoteEl.Tags {
			if el.tags.Add(tag) {
				changed = true
			}
		}
	}

	for _, tag := range remote.Tombstones {
		if s.tombstones.Add(tag) {
			changed = true
		}
	}

	return changed
}

// State возвращает копию текущего состояния для сериализации и слияния.
// Tags и tombstones отсортированы для детерминированной сериализации.
func (s *ORSet) State() ORSetState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := ORSetState{
		Elements:   make(map[string]ORSetElementState, len(s.elements)),
		Tombstones: sortedSlice(s.tombstones),
	}
	for key, el := range s.elements {
		state.Elements[key] = ORSetElementState{
			Value: append(json.RawMessage(nil), el.value...),
			Tags:  sortedSlice(el.tags),
		}
	}
	return state
}

// MarshalState сериализует состояние множества в JSON.
func (s *ORSet) MarshalState() ([]byte, error) {
	return json.Marshal(s.State())
}

// UnmarshalState восстанавливает состояние множества из JSON,
// заменяя текущее состояние.
func (s *ORSet) UnmarshalState(data []byte) error {
	var state ORSetState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal or-set state: %w", err)
	}

	s.mu.Lock()
	s.elements = make(map[string]*orSetElement)
	s.tombstones = mapset.NewSet[string]()
	s.mu.Unlock()

	s.Merge(state)
	return nil
}

// MergeORSetStates объединяет два сериализованных состояния or-set.
// Используется sync engine при структурном слиянии конкурентных версий.
func MergeORSetStates(a, b ORSetState) ORSetState {
	merged := ORSetState{Elements: make(map[string]ORSetElementState)}

	tombstones := mapset.NewSet[string](a.Tombstones...)
	for _, tag := range b.Tombstones {
		tombstones.Add(tag)
	}
	merged.Tombstones = sortedSlice(tombstones)

	for key, el := range a.Elements {
		tags := mapset.NewSet[string](el.Tags...)
		merged.Elements[key] = ORSetElementState{
			Value: el.Value,
			Tags:  sortedSlice(tags),
		}
	}
	for key, el := range b.Elements {
		existing, ok := merged.Elements[key]
		if !ok {
			tags := mapset.NewSet[string](el.Tags...)
			merged.Elements[key] = ORSetElementState{
				Value: el.Value,
				Tags:  sortedSlice(tags),
			}
			continue
		}
		tags := mapset.NewSet[string](existing.Tags...)
		for _, tag := range el.Tags {
			tags.Add(tag)
		}
		existing.Tags = sortedSlice(tags)
		existing.Value = mergeValue(existing.Value, el.Value)
		merged.Elements[key] = existing
	}

	return merged
}

// mergeValue выбирает значение для ключа, добавленного конкурентно с
// разными значениями на разных репликах: побеждает большее байтовое
// представление. Правило тотальное, поэтому все реплики сходятся к
// одному значению независимо от порядка слияний.
func mergeValue(a, b json.RawMessage) json.RawMessage {
	if bytes.Compare(b, a) > 0 {
		return b
	}
	return a
}

func sortedSlice(set mapset.Set[string]) []string {
	slice := set.ToSlice()
	sort.Strings(slice)
	return slice
}
