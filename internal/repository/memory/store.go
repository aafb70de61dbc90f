// Package memory keeps revaluation data in process memory. It mirrors the
// constraints of the Postgres schema and is used for local runs and tests.
package memory

import (
	"sync"

	"github.com/RubachokBoss/revaluation-service/internal/models"
)

type Store struct {
	mutex         sync.RWMutex
	registrations map[string]*models.Registration
	marks         map[string]*models.MarksEntry // by registration id
	finalMarks    map[string]*models.FinalMarks // by registration id

	rowLocks sync.Map // registration id -> *sync.Mutex
}

func NewStore() *Store {
	return &Store{
		registrations: make(map[string]*models.Registration),
		marks:         make(map[string]*models.MarksEntry),
		finalMarks:    make(map[string]*models.FinalMarks),
	}
}

func (s *Store) rowLock(id string) *sync.Mutex {
	lock, _ := s.rowLocks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func statusIn(s models.RegistrationStatus, set []models.RegistrationStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func isActive(s models.RegistrationStatus) bool {
	return s != models.StatusPublished && s != models.StatusCancelled
}
