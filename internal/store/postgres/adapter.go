package postgres

import (
	"time"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/core/recipe"
	"github.com/raystack/scale/core/recipe/definition"
)

type JobType struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"not null;uniqueIndex:idx_job_type_key"`
	Version     string `gorm:"not null;uniqueIndex:idx_job_type_key"`
	RevisionNum int
	Priority    int
	MaxTries    int
	Interface   datatypes.JSON

	CreatedAt time.Time `gorm:"not null"`
}

func (JobType) TableName() string { return "job_type" }

func fromJobType(jt *job.JobType) (JobType, error) {
	iface, err := json.Marshal(jt.Interface)
	if err != nil {
		return JobType{}, err
	}
	return JobType{
		ID:          jt.ID,
		Name:        jt.Name,
		Version:     jt.Version,
		RevisionNum: jt.RevisionNum,
		Priority:    jt.Priority,
		MaxTries:    jt.MaxTries,
		Interface:   iface,
	}, nil
}

func (t JobType) toJobType() (*job.JobType, error) {
	jt := &job.JobType{
		ID:          t.ID,
		Name:        t.Name,
		Version:     t.Version,
		RevisionNum: t.RevisionNum,
		Priority:    t.Priority,
		MaxTries:    t.MaxTries,
	}
	if len(t.Interface) > 0 {
		if err := json.Unmarshal(t.Interface, &jt.Interface); err != nil {
			return nil, err
		}
	}
	return jt, nil
}

type Job struct {
	ID        int64 `gorm:"primaryKey"`
	JobTypeID int64 `gorm:"not null;index"`
	EventID   int64

	RecipeID     int64 `gorm:"index"`
	RootRecipeID int64
	BatchID      int64
	NodeID       int64

	Status   string `gorm:"not null"`
	NumExes  int    `gorm:"not null"`
	MaxTries int
	Priority int
	ErrorID  int64

	Input  datatypes.JSON
	Output datatypes.JSON

	IsSuperseded        bool
	SupersededJobID     int64
	RootSupersededJobID int64
	Superseded          *time.Time
	IsPublished         bool

	Queued           *time.Time
	Started          *time.Time
	Ended            *time.Time
	LastStatusChange *time.Time
	Created          time.Time `gorm:"not null"`
}

func (Job) TableName() string { return "job" }

func fromJob(j *job.Job) (Job, error) {
	input, err := marshalData(j.Input)
	if err != nil {
		return Job{}, err
	}
	output, err := marshalData(j.Output)
	if err != nil {
		return Job{}, err
	}
	return Job{
		ID:                  j.ID,
		JobTypeID:           j.JobTypeID,
		EventID:             j.EventID,
		RecipeID:            j.RecipeID,
		RootRecipeID:        j.RootRecipeID,
		BatchID:             j.BatchID,
		NodeID:              j.NodeID,
		Status:              j.Status.String(),
		NumExes:             j.NumExes,
		MaxTries:            j.MaxTries,
		Priority:            j.Priority,
		ErrorID:             j.ErrorID,
		Input:               input,
		Output:              output,
		IsSuperseded:        j.IsSuperseded,
		SupersededJobID:     j.SupersededJobID,
		RootSupersededJobID: j.RootSupersededJobID,
		Superseded:          timePtr(j.Superseded),
		IsPublished:         j.IsPublished,
		Queued:              timePtr(j.Queued),
		Started:             timePtr(j.Started),
		Ended:               timePtr(j.Ended),
		LastStatusChange:    timePtr(j.LastStatusChange),
		Created:             j.Created,
	}, nil
}

func (j Job) toJob() (*job.Job, error) {
	status, err := job.StatusFromString(j.Status)
	if err != nil {
		return nil, err
	}
	input, err := unmarshalData(j.Input)
	if err != nil {
		return nil, err
	}
	output, err := unmarshalData(j.Output)
	if err != nil {
		return nil, err
	}
	return &job.Job{
		ID:                  j.ID,
		JobTypeID:           j.JobTypeID,
		EventID:             j.EventID,
		RecipeID:            j.RecipeID,
		RootRecipeID:        j.RootRecipeID,
		BatchID:             j.BatchID,
		NodeID:              j.NodeID,
		Status:              status,
		NumExes:             j.NumExes,
		MaxTries:            j.MaxTries,
		Priority:            j.Priority,
		ErrorID:             j.ErrorID,
		Input:               input,
		Output:              output,
		IsSuperseded:        j.IsSuperseded,
		SupersededJobID:     j.SupersededJobID,
		RootSupersededJobID: j.RootSupersededJobID,
		Superseded:          timeOf(j.Superseded),
		IsPublished:         j.IsPublished,
		Queued:              timeOf(j.Queued),
		Started:             timeOf(j.Started),
		Ended:               timeOf(j.Ended),
		LastStatusChange:    timeOf(j.LastStatusChange),
		Created:             j.Created,
	}, nil
}

// Queue holds one row per QUEUED job.
type Queue struct {
	JobID     int64 `gorm:"primaryKey;autoIncrement:false"`
	JobTypeID int64 `gorm:"not null"`
	RecipeID  int64
	ExeNum    int       `gorm:"not null"`
	Priority  int       `gorm:"not null;index"`
	Queued    time.Time `gorm:"not null"`
}

func (Queue) TableName() string { return "queue" }

func fromQueueEntry(e *job.QueueEntry) Queue {
	return Queue{
		JobID:     e.JobID,
		JobTypeID: e.JobTypeID,
		RecipeID:  e.RecipeID,
		ExeNum:    e.ExeNum,
		Priority:  e.Priority,
		Queued:    e.Queued,
	}
}

func (q Queue) toQueueEntry() *job.QueueEntry {
	return &job.QueueEntry{
		JobID:     q.JobID,
		JobTypeID: q.JobTypeID,
		RecipeID:  q.RecipeID,
		ExeNum:    q.ExeNum,
		Priority:  q.Priority,
		Queued:    q.Queued,
	}
}

type Error struct {
	ID              int64  `gorm:"primaryKey"`
	Name            string `gorm:"not null;uniqueIndex"`
	Category        string `gorm:"not null"`
	ShouldBeRetried bool
}

func (Error) TableName() string { return "error" }

type Recipe struct {
	ID              int64  `gorm:"primaryKey"`
	RecipeTypeName  string `gorm:"not null"`
	RecipeTypeRevID int64  `gorm:"not null"`
	RevisionNum     int
	EventID         int64 `gorm:"index"`
	BatchID         int64

	RecipeID     int64 `gorm:"index"`
	RootRecipeID int64

	IsSuperseded           bool
	Superseded             *time.Time
	SupersededRecipeID     int64
	RootSupersededRecipeID int64 `gorm:"index"`

	Input datatypes.JSON

	IsCompleted bool
	Completed   *time.Time

	JobsTotal           int
	JobsPending         int
	JobsBlocked         int
	JobsQueued          int
	JobsRunning         int
	JobsFailed          int
	JobsCompleted       int
	JobsCanceled        int
	SubRecipesTotal     int
	SubRecipesCompleted int

	Created time.Time `gorm:"not null"`
}

func (Recipe) TableName() string { return "recipe" }

func fromRecipe(r *recipe.Recipe) (Recipe, error) {
	input, err := marshalData(r.Input)
	if err != nil {
		return Recipe{}, err
	}
	return Recipe{
		ID:                     r.ID,
		RecipeTypeName:         r.RecipeTypeName,
		RecipeTypeRevID:        r.RecipeTypeRevID,
		RevisionNum:            r.RevisionNum,
		EventID:                r.EventID,
		BatchID:                r.BatchID,
		RecipeID:               r.RecipeID,
		RootRecipeID:           r.RootRecipeID,
		IsSuperseded:           r.IsSuperseded,
		Superseded:             timePtr(r.Superseded),
		SupersededRecipeID:     r.SupersededRecipeID,
		RootSupersededRecipeID: r.RootSupersededRecipeID,
		Input:                  input,
		IsCompleted:            r.IsCompleted,
		Completed:              timePtr(r.Completed),
		JobsTotal:              r.Metrics.JobsTotal,
		JobsPending:            r.Metrics.JobsPending,
		JobsBlocked:            r.Metrics.JobsBlocked,
		JobsQueued:             r.Metrics.JobsQueued,
		JobsRunning:            r.Metrics.JobsRunning,
		JobsFailed:             r.Metrics.JobsFailed,
		JobsCompleted:          r.Metrics.JobsCompleted,
		JobsCanceled:           r.Metrics.JobsCanceled,
		SubRecipesTotal:        r.Metrics.SubRecipesTotal,
		SubRecipesCompleted:    r.Metrics.SubRecipesCompleted,
		Created:                r.Created,
	}, nil
}

func (r Recipe) toRecipe() (*recipe.Recipe, error) {
	input, err := unmarshalData(r.Input)
	if err != nil {
		return nil, err
	}
	return &recipe.Recipe{
		ID:                     r.ID,
		RecipeTypeName:         r.RecipeTypeName,
		RecipeTypeRevID:        r.RecipeTypeRevID,
		RevisionNum:            r.RevisionNum,
		EventID:                r.EventID,
		BatchID:                r.BatchID,
		RecipeID:               r.RecipeID,
		RootRecipeID:           r.RootRecipeID,
		IsSuperseded:           r.IsSuperseded,
		Superseded:             timeOf(r.Superseded),
		SupersededRecipeID:     r.SupersededRecipeID,
		RootSupersededRecipeID: r.RootSupersededRecipeID,
		Input:                  input,
		IsCompleted:            r.IsCompleted,
		Completed:              timeOf(r.Completed),
		Metrics: recipe.Metrics{
			JobsTotal:           r.JobsTotal,
			JobsPending:         r.JobsPending,
			JobsBlocked:         r.JobsBlocked,
			JobsQueued:          r.JobsQueued,
			JobsRunning:         r.JobsRunning,
			JobsFailed:          r.JobsFailed,
			JobsCompleted:       r.JobsCompleted,
			JobsCanceled:        r.JobsCanceled,
			SubRecipesTotal:     r.SubRecipesTotal,
			SubRecipesCompleted: r.SubRecipesCompleted,
		},
		Created: r.Created,
	}, nil
}

type RecipeNode struct {
	ID          int64  `gorm:"primaryKey"`
	RecipeID    int64  `gorm:"not null;index"`
	NodeName    string `gorm:"not null"`
	JobID       int64
	SubRecipeID int64
	IsOriginal  bool
}

func (RecipeNode) TableName() string { return "recipe_node" }

func fromRecipeNode(n *recipe.Node) RecipeNode {
	return RecipeNode{
		ID:          n.ID,
		RecipeID:    n.RecipeID,
		NodeName:    n.NodeName,
		JobID:       n.JobID,
		SubRecipeID: n.SubRecipeID,
		IsOriginal:  n.IsOriginal,
	}
}

func (n RecipeNode) toRecipeNode() *recipe.Node {
	return &recipe.Node{
		ID:          n.ID,
		RecipeID:    n.RecipeID,
		NodeName:    n.NodeName,
		JobID:       n.JobID,
		SubRecipeID: n.SubRecipeID,
		IsOriginal:  n.IsOriginal,
	}
}

type RecipeTypeRevision struct {
	ID          int64          `gorm:"primaryKey"`
	Name        string         `gorm:"not null;uniqueIndex:idx_recipe_type_revision"`
	RevisionNum int            `gorm:"not null;uniqueIndex:idx_recipe_type_revision"`
	Definition  datatypes.JSON `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
}

func (RecipeTypeRevision) TableName() string { return "recipe_type_revision" }

func (r RecipeTypeRevision) toTypeRevision() (*recipe.TypeRevision, error) {
	def, err := definition.Parse(r.Definition)
	if err != nil {
		return nil, err
	}
	return &recipe.TypeRevision{
		ID:          r.ID,
		Name:        r.Name,
		RevisionNum: r.RevisionNum,
		Definition:  def,
	}, nil
}

func marshalData(d *job.Data) (datatypes.JSON, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func unmarshalData(raw datatypes.JSON) (*job.Data, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var d job.Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
