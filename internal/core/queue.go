package core

import (
	"sync"
)

// Queue holds downloads waiting for a free slot, oldest first.
type Queue struct {
	items []*Download
	mutex sync.RWMutex
}

func NewQueue() *Queue {
	return &Queue{
		items: make([]*Download, 0),
	}
}

func (q *Queue) Add(download *Download) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, d := range q.items {
		if d.ID == download.ID {
			return
		}
	}
	q.items = append(q.items, download)
}

// Next removes and returns the oldest pending download, or nil.
func (q *Queue) Next() *Download {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, download := range q.items {
		if download.Status == StatusPending {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return download
		}
	}

	return nil
}

func (q *Queue) Remove(id int64) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, download := range q.items {
		if download.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
}

func (q *Queue) Len() int {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	return len(q.items)
}

func (q *Queue) GetAll() []*Download {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	result := make([]*Download, len(q.items))
	copy(result, q.items)
	return result
}
