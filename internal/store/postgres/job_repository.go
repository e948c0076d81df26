package postgres

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/internal/errors"
)

func (s *Store) LockJobs(ctx context.Context, ids []int64) ([]*job.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []Job
	if err := s.locked(ctx).Where("id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.InternalError(job.EntityJob, "unable to lock jobs", err)
	}
	return toJobs(rows)
}

func (s *Store) GetJobs(ctx context.Context, ids []int64) ([]*job.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []Job
	if err := s.conn(ctx).Where("id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.InternalError(job.EntityJob, "unable to get jobs", err)
	}
	return toJobs(rows)
}

func toJobs(rows []Job) ([]*job.Job, error) {
	jobs := make([]*job.Job, len(rows))
	for i, row := range rows {
		j, err := row.toJob()
		if err != nil {
			return nil, errors.InternalError(job.EntityJob, "unable to read job", err)
		}
		jobs[i] = j
	}
	return jobs, nil
}

// CreateJobs inserts the jobs and sets their ids.
func (s *Store) CreateJobs(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	rows := make([]Job, len(jobs))
	for i, j := range jobs {
		row, err := fromJob(j)
		if err != nil {
			return errors.InternalError(job.EntityJob, "unable to convert job", err)
		}
		rows[i] = row
	}
	if err := s.conn(ctx).Create(&rows).Error; err != nil {
		return errors.InternalError(job.EntityJob, "unable to create jobs", err)
	}
	for i := range jobs {
		jobs[i].ID = rows[i].ID
	}
	return nil
}

func (s *Store) UpdateJobs(ctx context.Context, jobs []*job.Job) error {
	for _, j := range jobs {
		row, err := fromJob(j)
		if err != nil {
			return errors.InternalError(job.EntityJob, "unable to convert job", err)
		}
		if err := s.conn(ctx).Save(&row).Error; err != nil {
			return errors.InternalError(job.EntityJob, "unable to update job", err)
		}
	}
	return nil
}

// CreateJobTypes inserts the job types and sets their ids.
func (s *Store) CreateJobTypes(ctx context.Context, jobTypes []*job.JobType) error {
	for _, jt := range jobTypes {
		row, err := fromJobType(jt)
		if err != nil {
			return errors.InternalError(job.EntityJobType, "unable to convert job type", err)
		}
		if err := s.conn(ctx).Create(&row).Error; err != nil {
			return errors.InternalError(job.EntityJobType, "unable to create job type "+jt.Key().String(), err)
		}
		jt.ID = row.ID
	}
	return nil
}

func (s *Store) GetJobTypes(ctx context.Context, ids []int64) (map[int64]*job.JobType, error) {
	jobTypes := map[int64]*job.JobType{}
	if len(ids) == 0 {
		return jobTypes, nil
	}
	var rows []JobType
	if err := s.conn(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, errors.InternalError(job.EntityJobType, "unable to get job types", err)
	}
	for _, row := range rows {
		jt, err := row.toJobType()
		if err != nil {
			return nil, errors.InternalError(job.EntityJobType, "unable to read job type", err)
		}
		jobTypes[jt.ID] = jt
	}
	return jobTypes, nil
}

func (s *Store) GetJobTypesByKey(ctx context.Context, keys []job.Key) (map[job.Key]*job.JobType, error) {
	jobTypes := map[job.Key]*job.JobType{}
	if len(keys) == 0 {
		return jobTypes, nil
	}
	wanted := make(map[job.Key]bool, len(keys))
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		wanted[k] = true
		names = append(names, k.Name)
	}

	var rows []JobType
	if err := s.conn(ctx).Where("name IN ?", names).Find(&rows).Error; err != nil {
		return nil, errors.InternalError(job.EntityJobType, "unable to get job types", err)
	}
	for _, row := range rows {
		jt, err := row.toJobType()
		if err != nil {
			return nil, errors.InternalError(job.EntityJobType, "unable to read job type", err)
		}
		if wanted[jt.Key()] {
			jobTypes[jt.Key()] = jt
		}
	}
	return jobTypes, nil
}

func (s *Store) CreateErrors(ctx context.Context, causes []*job.Error) error {
	for _, e := range causes {
		row := Error{ID: e.ID, Name: e.Name, Category: e.Category, ShouldBeRetried: e.ShouldBeRetried}
		if err := s.conn(ctx).Create(&row).Error; err != nil {
			return errors.InternalError(job.EntityJob, "unable to create error "+e.Name, err)
		}
		e.ID = row.ID
	}
	return nil
}

func (s *Store) GetErrors(ctx context.Context, ids []int64) (map[int64]*job.Error, error) {
	causes := map[int64]*job.Error{}
	if len(ids) == 0 {
		return causes, nil
	}
	var rows []Error
	if err := s.conn(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, errors.InternalError(job.EntityJob, "unable to get errors", err)
	}
	for _, row := range rows {
		causes[row.ID] = &job.Error{
			ID:              row.ID,
			Name:            row.Name,
			Category:        row.Category,
			ShouldBeRetried: row.ShouldBeRetried,
		}
	}
	return causes, nil
}

// UpsertQueue inserts queue entries, replacing the entry of a job that is
// queued already.
func (s *Store) UpsertQueue(ctx context.Context, entries []*job.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]Queue, len(entries))
	for i, e := range entries {
		rows[i] = fromQueueEntry(e)
	}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(&rows).Error
	if err != nil {
		return errors.InternalError(job.EntityJobQueue, "unable to queue jobs", err)
	}
	return nil
}

func (s *Store) DeleteQueue(ctx context.Context, jobIDs []int64) error {
	if len(jobIDs) == 0 {
		return nil
	}
	if err := s.conn(ctx).Where("job_id IN ?", jobIDs).Delete(&Queue{}).Error; err != nil {
		return errors.InternalError(job.EntityJobQueue, "unable to remove jobs from queue", err)
	}
	return nil
}

// GetQueue returns the queue in the order the scheduler takes jobs from
// it: lowest priority value first, then oldest.
func (s *Store) GetQueue(ctx context.Context) ([]*job.QueueEntry, error) {
	var rows []Queue
	if err := s.conn(ctx).Order("priority, queued, job_id").Find(&rows).Error; err != nil {
		return nil, errors.InternalError(job.EntityJobQueue, "unable to get queue", err)
	}
	entries := make([]*job.QueueEntry, len(rows))
	for i, row := range rows {
		entries[i] = row.toQueueEntry()
	}
	return entries, nil
}
