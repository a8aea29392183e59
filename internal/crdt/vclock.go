package crdt

// Ordering описывает результат сравнения двух векторных часов.
type Ordering int

const (
	// OrderingEqual - часы идентичны
	OrderingEqual Ordering = iota
	// OrderingDominates - локальные часы причинно новее удаленных
	OrderingDominates
	// OrderingDominated - удаленные часы причинно новее локальных
	OrderingDominated
	// OrderingConcurrent - ни одни часы не доминируют, обновления конкурентны
	OrderingConcurrent
)

// VectorClock представляет векторные часы: счетчик событий на каждый узел.
// Используется для определения причинно-следственного порядка между
// версиями одной записи на разных узлах без синхронизации физического времени.
type VectorClock map[string]int64

// NewVectorClock создает пустые векторные часы.
func NewVectorClock() VectorClock {
	return make(VectorClock)
}

// Increment увеличивает счетчик заданного узла и возвращает новое значение.
// Вызывается при каждом локальном изменении записи.
func (vc VectorClock) Increment(nodeID string) int64 {
	vc[nodeID]++
	return vc[nodeID]
}

// Get возвращает счетчик узла (0, если узел часам неизвестен).
func (vc VectorClock) Get(nodeID string) int64 {
	return vc[nodeID]
}

// Merge объединяет часы с удаленными, беря максимум по каждому узлу.
// Неизвестные узлы просто перенимаются. Операция коммутативна и идемпотентна.
func (vc VectorClock) Merge(other VectorClock) {
	for nodeID, counter := range other {
		if counter > vc[nodeID] {
			vc[nodeID] = counter
		}
	}
}

// Compare определяет причинный порядок между локальными и удаленными часами.
// A причинно новее B, если по каждому узлу счетчик A >= счетчика B
// и хотя бы по одному узлу строго больше. Если ни одни часы не новее -
// обновления конкурентны и требуют структурного слияния.
func (vc VectorClock) Compare(other VectorClock) Ordering {
	greater := false
	less := false

	for nodeID := range vc {
		switch {
		case vc[nodeID] > other[nodeID]:
			greater = true
		case vc[nodeID] < other[nodeID]:
			less = true
		}
	}
	for nodeID := range other {
		if _, ok := vc[nodeID]; ok {
			continue
		}
		if other[nodeID] > 0 {
			less = true
		}
	}

	switch {
	case greater && less:
		return OrderingConcurrent
	case greater:
		return OrderingDominates
	case less:
		return OrderingDominated
	default:
		return OrderingEqual
	}
}

// Clone создает независимую копию часов.
func (vc VectorClock) Clone() VectorClock {
	clone := make(VectorClock, len(vc))
	for nodeID, counter := range vc {
		clone[nodeID] = counter
	}
	return clone
}
