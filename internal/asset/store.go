package asset

import (
	"container/list"
	"sync"
	"time"
)

// Store is a bounded asset buffer with primary, per-device and per-type
// indexes. The buffer keeps most-recently-updated assets first; when the
// cap is exceeded the oldest asset is evicted.
type Store struct {
	mu  sync.Mutex
	max int

	order   *list.List               // *Asset, most recent at front
	byID    map[string]*list.Element // assetId -> element
	removed int
}

func NewStore(max int) *Store {
	return &Store{
		max:   max,
		order: list.New(),
		byID:  make(map[string]*list.Element),
	}
}

// Add inserts or updates an asset, moving it to the front. Returns the
// asset evicted to stay within the cap, if any.
func (s *Store) Add(a *Asset) *Asset {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.byID[a.AssetID()]; ok {
		old := el.Value.(*Asset)
		if old.IsRemoved() {
			s.removed--
		}
		el.Value = a
		s.order.MoveToFront(el)
	} else {
		s.byID[a.AssetID()] = s.order.PushFront(a)
	}

	if a.IsRemoved() {
		s.removed++
	}

	if s.order.Len() > s.max {
		oldest := s.order.Back()
		evicted := oldest.Value.(*Asset)
		s.order.Remove(oldest)
		delete(s.byID, evicted.AssetID())
		if evicted.IsRemoved() {
			s.removed--
		}
		return evicted
	}
	return nil
}

// Remove marks an asset removed in place. Returns the asset, or nil when
// unknown.
func (s *Store) Remove(id string, ts time.Time) *Asset {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.byID[id]
	if !ok {
		return nil
	}
	a := el.Value.(*Asset)
	if !a.IsRemoved() {
		a.SetRemoved(true)
		a.SetTimestamp(ts)
		s.removed++
	}
	return a
}

// RemoveAll marks every active asset matching the device and type filters
// removed. Empty filters match everything. Returns the affected assets.
func (s *Store) RemoveAll(deviceUUID, assetType string, ts time.Time) []*Asset {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected []*Asset
	for el := s.order.Front(); el != nil; el = el.Next() {
		a := el.Value.(*Asset)
		if a.IsRemoved() {
			continue
		}
		if deviceUUID != "" && a.DeviceUUID() != deviceUUID {
			continue
		}
		if assetType != "" && a.Type() != assetType {
			continue
		}
		a.SetRemoved(true)
		a.SetTimestamp(ts)
		s.removed++
		affected = append(affected, a)
	}
	return affected
}

// Get returns the asset with the given id.
func (s *Store) Get(id string) *Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.byID[id]; ok {
		return el.Value.(*Asset)
	}
	return nil
}

// Assets returns up to max assets, most recent first, filtered by device
// and type. Removed assets are skipped unless includeRemoved is set.
func (s *Store) Assets(max int, deviceUUID, assetType string, includeRemoved bool) []*Asset {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Asset
	for el := s.order.Front(); el != nil && len(out) < max; el = el.Next() {
		a := el.Value.(*Asset)
		if !includeRemoved && a.IsRemoved() {
			continue
		}
		if deviceUUID != "" && a.DeviceUUID() != deviceUUID {
			continue
		}
		if assetType != "" && a.Type() != assetType {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Count returns the number of assets; active only unless all is set.
func (s *Store) Count(all bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if all {
		return s.order.Len()
	}
	return s.order.Len() - s.removed
}
