package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/RubachokBoss/revaluation-service/internal/models"
	"github.com/RubachokBoss/revaluation-service/internal/repository"
)

type marksRepository struct {
	db            *Store
	registrations *registrationRepository
}

func NewMarksRepository(db *Store) repository.MarksRepository {
	return &marksRepository{db: db, registrations: &registrationRepository{db: db}}
}

func (repo *marksRepository) GetByRegistrationID(_ context.Context, registrationID string) (*models.MarksEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if entry, ok := repo.db.marks[registrationID]; ok {
		out := copyEntry(*entry)
		return &out, nil
	}
	return nil, nil
}

func (repo *marksRepository) SaveDraft(_ context.Context, entry *models.MarksEntry, start *models.Transition) (*models.Registration, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	existing, ok := repo.db.marks[entry.RegistrationID]
	if ok && (existing.EntryStatus != models.EntryDraft || existing.ExaminerID != entry.ExaminerID) {
		return nil, repository.ErrEntryLocked
	}

	var updated *models.Registration
	if start != nil {
		reg, err := repo.registrations.transition(*start)
		if err != nil {
			return nil, err
		}
		updated = reg
	}

	saved := copyEntry(*entry)
	saved.EntryStatus = models.EntryDraft
	if ok {
		saved.ID = existing.ID
		saved.CreatedAt = existing.CreatedAt
	} else {
		saved.CreatedAt = entry.UpdatedAt
	}
	repo.db.marks[entry.RegistrationID] = &saved

	entry.ID = saved.ID
	entry.CreatedAt = saved.CreatedAt
	entry.EntryStatus = models.EntryDraft
	return updated, nil
}

type finalMarksRepository struct {
	db            *Store
	registrations *registrationRepository
}

func NewFinalMarksRepository(db *Store) repository.FinalMarksRepository {
	return &finalMarksRepository{db: db, registrations: &registrationRepository{db: db}}
}

func (repo *finalMarksRepository) CreateOnEvaluated(_ context.Context, fm *models.FinalMarks, draftUpdatedAt time.Time, t models.Transition) (*models.Registration, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.finalMarks[fm.RegistrationID]; ok {
		return nil, fmt.Errorf("%w: revaluation_final_marks", repository.ErrDuplicate)
	}
	entry, ok := repo.db.marks[fm.RegistrationID]
	if !ok || entry.ID != fm.MarksEntryID || entry.EntryStatus != models.EntryDraft {
		return nil, repository.ErrEntryLocked
	}
	if !entry.UpdatedAt.Equal(draftUpdatedAt) || entry.MarksObtained != fm.ExternalMarks {
		return nil, repository.ErrDraftChanged
	}

	updated, err := repo.registrations.transition(t)
	if err != nil {
		return nil, err
	}

	submitted := copyEntry(*entry)
	submitted.EntryStatus = models.EntrySubmitted
	submitted.SubmittedAt = &t.At
	submitted.UpdatedAt = t.At
	repo.db.marks[fm.RegistrationID] = &submitted

	stored := *fm
	repo.db.finalMarks[fm.RegistrationID] = &stored
	return updated, nil
}

func (repo *finalMarksRepository) GetByRegistrationID(_ context.Context, registrationID string) (*models.FinalMarks, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if fm, ok := repo.db.finalMarks[registrationID]; ok {
		out := *fm
		return &out, nil
	}
	return nil, nil
}

func (repo *finalMarksRepository) ListByRegistrationIDs(_ context.Context, registrationIDs []string) (map[string]models.FinalMarks, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	out := make(map[string]models.FinalMarks, len(registrationIDs))
	for _, id := range registrationIDs {
		if fm, ok := repo.db.finalMarks[id]; ok {
			out[id] = *fm
		}
	}
	return out, nil
}

func copyEntry(e models.MarksEntry) models.MarksEntry {
	if e.QuestionWiseMarks != nil {
		qw := make(map[string]float64, len(e.QuestionWiseMarks))
		for k, v := range e.QuestionWiseMarks {
			qw[k] = v
		}
		e.QuestionWiseMarks = qw
	}
	return e
}
