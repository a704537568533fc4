package audit

import (
	"fmt"

	"github.com/bidyaasp/project-management/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry is the content of one history row before it is bound to an owner.
type Entry struct {
	Action      models.HistoryAction
	Field       string
	Old         *string
	New         *string
	Changes     map[string]interface{}
	Description string
}

// FromChange builds an updated entry for a single detected field change.
func FromChange(action models.HistoryAction, fc FieldChange, description string) Entry {
	return Entry{
		Action:      action,
		Field:       fc.Field,
		Old:         fc.Old,
		New:         fc.New,
		Changes:     Changes{fc}.Map(),
		Description: description,
	}
}

// Written identifies a history row appended by a Recorder.
type Written struct {
	Owner     string // project or task
	OwnerID   uint
	ProjectID uint
	HistoryID uint
	ActorID   *uint
	Action    models.HistoryAction
	Field     string
	Old       *string
	New       *string
	Summary   string
}

// Recorder appends history rows through the transaction it is bound to, so
// a rollback discards them together with the entity write.
type Recorder struct {
	tx      *gorm.DB
	actorID *uint
	written []Written
}

func NewRecorder(tx *gorm.DB, actorID *uint) *Recorder {
	return &Recorder{tx: tx, actorID: actorID}
}

func (r *Recorder) RecordProject(projectID uint, e Entry) (*models.ProjectHistory, error) {
	row := &models.ProjectHistory{
		ProjectID:   projectID,
		UserID:      r.actorID,
		Action:      e.Action,
		FieldName:   optionalString(e.Field),
		OldValue:    e.Old,
		NewValue:    e.New,
		Changes:     jsonMap(e.Changes),
		Description: e.Description,
	}
	if err := r.tx.Create(row).Error; err != nil {
		return nil, fmt.Errorf("record project history: %w", err)
	}
	r.written = append(r.written, written("project", projectID, projectID, row.ID, r.actorID, e))
	return row, nil
}

func (r *Recorder) RecordTask(task *models.Task, e Entry) (*models.TaskHistory, error) {
	row := &models.TaskHistory{
		TaskID:      task.ID,
		UserID:      r.actorID,
		Action:      e.Action,
		FieldName:   optionalString(e.Field),
		OldValue:    e.Old,
		NewValue:    e.New,
		Changes:     jsonMap(e.Changes),
		Description: e.Description,
	}
	if err := r.tx.Create(row).Error; err != nil {
		return nil, fmt.Errorf("record task history: %w", err)
	}
	r.written = append(r.written, written("task", task.ID, task.ProjectID, row.ID, r.actorID, e))
	return row, nil
}

// Written returns the rows appended so far, in write order.
func (r *Recorder) Written() []Written {
	return r.written
}

func written(owner string, ownerID, projectID, historyID uint, actorID *uint, e Entry) Written {
	return Written{
		Owner:     owner,
		OwnerID:   ownerID,
		ProjectID: projectID,
		HistoryID: historyID,
		ActorID:   actorID,
		Action:    e.Action,
		Field:     e.Field,
		Old:       e.Old,
		New:       e.New,
		Summary:   e.Description,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func jsonMap(m map[string]interface{}) datatypes.JSONMap {
	if len(m) == 0 {
		return nil
	}
	return datatypes.JSONMap(m)
}
