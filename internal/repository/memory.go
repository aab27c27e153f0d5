package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/feichai0017/pdf-task-processor/internal/models"
)

type memoryFileRepository struct {
	mu     sync.RWMutex
	nextID int64
	files  map[int64]*models.StoredFile
	leases map[int64]int
}

// NewMemoryFileRepository returns a process-local FileRepository.
func NewMemoryFileRepository() FileRepository {
	return &memoryFileRepository{
		files:  make(map[int64]*models.StoredFile),
		leases: make(map[int64]int),
	}
}

func (r *memoryFileRepository) Create(ctx context.Context, f *models.StoredFile) (*models.StoredFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	stored := f.Clone()
	stored.ID = r.nextID
	r.files[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *memoryFileRepository) Get(ctx context.Context, id int64) (*models.StoredFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.files[id]
	if !ok {
		return nil, models.ErrFileNotFound
	}
	return f.Clone(), nil
}

func (r *memoryFileRepository) List(ctx context.Context) ([]*models.StoredFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.StoredFile, 0, len(r.files))
	for _, f := range r.files {
		out = append(out, f.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryFileRepository) Delete(ctx context.Context, id int64) (*models.StoredFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok {
		return nil, models.ErrFileNotFound
	}
	if r.leases[id] > 0 {
		return nil, models.ErrFileInUse
	}
	delete(r.files, id)
	return f, nil
}

func (r *memoryFileRepository) Acquire(ctx context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if _, ok := r.files[id]; ok {
			r.leases[id]++
		}
	}
	return nil
}

func (r *memoryFileRepository) Release(ctx context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if n, ok := r.leases[id]; ok {
			if n <= 1 {
				delete(r.leases, id)
			} else {
				r.leases[id] = n - 1
			}
		}
	}
	return nil
}

type memoryTaskRepository struct {
	mu     sync.RWMutex
	nextID int64
	tasks  map[int64]*models.ProcessingTask
}

// NewMemoryTaskRepository returns a process-local TaskRepository.
func NewMemoryTaskRepository() TaskRepository {
	return &memoryTaskRepository{tasks: make(map[int64]*models.ProcessingTask)}
}

func (r *memoryTaskRepository) Create(ctx context.Context, t *models.ProcessingTask) (*models.ProcessingTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	stored := t.Clone()
	stored.ID = r.nextID
	r.tasks[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *memoryTaskRepository) Get(ctx context.Context, id int64) (*models.ProcessingTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (r *memoryTaskRepository) Update(ctx context.Context, id int64, u models.TaskUpdate) (*models.ProcessingTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	next := t.Clone()
	if err := next.Apply(u, time.Now()); err != nil {
		return nil, err
	}
	r.tasks[id] = next
	return next.Clone(), nil
}
