package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/RubachokBoss/revaluation-service/internal/models"
	"github.com/RubachokBoss/revaluation-service/internal/repository"
)

type registrationRepository struct {
	db *Store
}

func NewRegistrationRepository(db *Store) repository.RegistrationRepository {
	return &registrationRepository{db: db}
}

func (repo *registrationRepository) CreateBatch(_ context.Context, regs []models.Registration) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	staged := make([]models.Registration, 0, len(regs))
	for _, reg := range regs {
		if _, ok := repo.db.registrations[reg.ID]; ok {
			return fmt.Errorf("%w: registration id", repository.ErrDuplicate)
		}
		for _, other := range append(repo.existing(), staged...) {
			if other.ExamRegistrationID != reg.ExamRegistrationID || other.CourseID != reg.CourseID {
				continue
			}
			if other.AttemptNumber == reg.AttemptNumber {
				return fmt.Errorf("%w: uq_revaluation_attempt", repository.ErrDuplicate)
			}
			if isActive(other.Status) && isActive(reg.Status) {
				return fmt.Errorf("%w: uq_revaluation_active", repository.ErrDuplicate)
			}
		}
		staged = append(staged, reg)
	}

	for i := range staged {
		reg := staged[i]
		repo.db.registrations[reg.ID] = &reg
	}
	return nil
}

func (repo *registrationRepository) existing() []models.Registration {
	out := make([]models.Registration, 0, len(repo.db.registrations))
	for _, reg := range repo.db.registrations {
		out = append(out, *reg)
	}
	return out
}

func (repo *registrationRepository) GetByID(_ context.Context, id string) (*models.Registration, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if reg, ok := repo.db.registrations[id]; ok {
		out := *reg
		return &out, nil
	}
	return nil, nil
}

func (repo *registrationRepository) GetByScriptCode(_ context.Context, scriptCode string) (*models.Registration, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, reg := range repo.db.registrations {
		if reg.ScriptCode != nil && *reg.ScriptCode == scriptCode {
			out := *reg
			return &out, nil
		}
	}
	return nil, nil
}

func (repo *registrationRepository) ListByExamRegistration(_ context.Context, examRegistrationID string) ([]models.Registration, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var out []models.Registration
	for _, reg := range repo.db.registrations {
		if reg.ExamRegistrationID == examRegistrationID {
			out = append(out, *reg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CourseID != out[j].CourseID {
			return out[i].CourseID < out[j].CourseID
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out, nil
}

func (repo *registrationRepository) List(_ context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var matched []models.Registration
	for _, reg := range repo.db.registrations {
		if matches(reg, filter) {
			matched = append(matched, *reg)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ApplicationDate.Equal(matched[j].ApplicationDate) {
			return matched[i].ApplicationDate.After(matched[j].ApplicationDate)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if filter.Limit <= 0 {
		return matched, total, nil
	}
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func matches(reg *models.Registration, f models.RegistrationFilter) bool {
	if f.InstitutionsID != "" && reg.InstitutionsID != f.InstitutionsID {
		return false
	}
	if f.ExaminationSessionID != "" && reg.ExaminationSessionID != f.ExaminationSessionID {
		return false
	}
	if f.ExamRegistrationID != "" && reg.ExamRegistrationID != f.ExamRegistrationID {
		return false
	}
	if f.CourseID != "" && reg.CourseID != f.CourseID {
		return false
	}
	if f.ExaminerID != "" && (reg.ExaminerID == nil || *reg.ExaminerID != f.ExaminerID) {
		return false
	}
	if len(f.Statuses) > 0 && !statusIn(reg.Status, f.Statuses) {
		return false
	}
	if f.PaymentStatus != "" && reg.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		found := false
		for _, field := range []string{reg.StudentRegisterNumber, reg.StudentName, reg.CourseCode, reg.CourseTitle} {
			if strings.Contains(strings.ToLower(field), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (repo *registrationRepository) Transition(_ context.Context, t models.Transition) (*models.Registration, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	return repo.transition(t)
}

// transition must be called with the write lock held.
func (repo *registrationRepository) transition(t models.Transition) (*models.Registration, error) {
	reg, ok := repo.db.registrations[t.RegistrationID]
	if !ok || !statusIn(reg.Status, t.From) {
		return nil, repository.ErrStaleStatus
	}
	if code := t.Patch.ScriptCode; code != nil {
		for id, other := range repo.db.registrations {
			if id != reg.ID && other.ScriptCode != nil && *other.ScriptCode == *code {
				return nil, fmt.Errorf("%w: uq_revaluation_script_code", repository.ErrDuplicate)
			}
		}
	}

	updated := *reg
	t.Patch.Apply(&updated)
	updated.Status = t.To
	updated.UpdatedAt = t.At
	repo.db.registrations[reg.ID] = &updated

	out := updated
	return &out, nil
}

func (repo *registrationRepository) Publish(ctx context.Context, t models.Transition, apply repository.ApplyFunc) (*models.Registration, error) {
	lock := repo.db.rowLock(t.RegistrationID)
	lock.Lock()
	defer lock.Unlock()

	current, err := repo.GetByID(ctx, t.RegistrationID)
	if err != nil {
		return nil, err
	}
	if current == nil || !statusIn(current.Status, t.From) {
		return nil, repository.ErrStaleStatus
	}

	if err := apply(ctx, current); err != nil {
		return nil, err
	}
	return repo.Transition(ctx, t)
}

func (repo *registrationRepository) SetReceipt(_ context.Context, id, objectKey string, status models.RegistrationStatus) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	reg, ok := repo.db.registrations[id]
	if !ok || reg.Status != status {
		return repository.ErrStaleStatus
	}
	updated := *reg
	updated.ReceiptObjectKey = &objectKey
	repo.db.registrations[id] = &updated
	return nil
}
