package dbutils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fioncat/dbutils/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MaxTaskValueSize is the largest JSON encoded task value accepted by Set.
const MaxTaskValueSize = 48 * 1024

// Jobs is the jobs group, it only holds task values.
type Jobs struct {
	u *DBUtils

	taskValues *TaskValues
}

func (j *Jobs) Help(method string) string {
	return groupHelp("jobs", method)
}

func (j *Jobs) TaskValues() *TaskValues {
	return j.taskValues
}

// TaskValues exchanges values between the tasks of one job run.
type TaskValues struct {
	u *DBUtils
}

func (t *TaskValues) Help(method string) string {
	return groupHelp("jobs.taskValues", method)
}

// Set stores value under key for the current task. Outside a job it does
// nothing.
func (t *TaskValues) Set(ctx context.Context, key string, value any) (err error) {
	defer observe("jobs", "taskValues.set", &err)

	if key == "" {
		return fmt.Errorf("%w: task value key is empty", types.ErrInvalidArgument)
	}
	if strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: task value key %q contains NUL", types.ErrInvalidArgument, key)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: task value %q is not JSON serializable: %v", types.ErrInvalidArgument, key, err)
	}
	if len(data) > MaxTaskValueSize {
		return fmt.Errorf("%w: task value %q is %d bytes, the limit is %d", types.ErrInvalidArgument, key, len(data), MaxTaskValueSize)
	}

	job := t.u.job
	if job == nil {
		t.u.logger.Debugf("Not in a job, ignore task value %q", key)
		return nil
	}
	return t.u.ws.Store.PutTaskValue(job.runID, job.taskKey, key, data)
}

// Get reads the value set by task taskKey of the current run. A missing
// value yields defaultValue, or fails when it is nil. Outside a job
// debugValue is returned, and Get fails when it is nil.
func (t *TaskValues) Get(ctx context.Context, taskKey, key string, defaultValue, debugValue any) (value any, err error) {
	defer observe("jobs", "taskValues.get", &err)

	job := t.u.job
	if job == nil {
		if debugValue == nil {
			return nil, fmt.Errorf("%w: not running in a job, debugValue is required", types.ErrInvalidArgument)
		}
		return debugValue, nil
	}

	data, err := t.u.ws.Store.GetTaskValue(job.runID, taskKey, key)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) && defaultValue != nil {
			return defaultValue, nil
		}
		return nil, err
	}

	err = json.Unmarshal(data, &value)
	if err != nil {
		return nil, fmt.Errorf("decode task value %q of task %q: %w", key, taskKey, err)
	}
	return value, nil
}

// JobTask is one notebook task of a job.
type JobTask struct {
	Key string `json:"key"`

	Notebook string `json:"notebook"`

	DependsOn []string `json:"dependsOn,omitempty"`

	Arguments map[string]string `json:"arguments,omitempty"`

	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

// JobRun is the outcome of RunJob: the exit value of every task.
type JobRun struct {
	RunID string `json:"runId"`

	Results map[string]string `json:"results"`
}

// RunJob runs the tasks in dependency order under a new run ID. Tasks
// exchange data through task values. The first failing task stops the run.
func (ws *Workspace) RunJob(ctx context.Context, tasks []JobTask) (*JobRun, error) {
	order, err := sortTasks(tasks)
	if err != nil {
		return nil, err
	}

	run := &JobRun{
		RunID:   uuid.NewString(),
		Results: make(map[string]string, len(tasks)),
	}
	logger := logrus.WithField("RunID", run.RunID)
	logger.Infof("Start job with %d tasks", len(tasks))

	for _, task := range order {
		u := New(ws, WithJobContext(run.RunID, task.Key))
		value, err := u.Notebook().Run(ctx, task.Notebook, task.TimeoutSeconds, task.Arguments)
		u.Close()
		if err != nil {
			return run, fmt.Errorf("task %q: %w", task.Key, err)
		}
		run.Results[task.Key] = value
		logger.Debugf("Task %q done", task.Key)
	}
	return run, nil
}

// sortTasks orders tasks so that every task comes after its dependencies.
// Among the tasks whose dependencies are done, the earliest in the input
// runs first.
func sortTasks(tasks []JobTask) ([]JobTask, error) {
	index := make(map[string]int, len(tasks))
	for i, task := range tasks {
		if task.Key == "" {
			return nil, fmt.Errorf("%w: task %d has no key", types.ErrInvalidArgument, i)
		}
		if strings.ContainsRune(task.Key, 0) {
			return nil, fmt.Errorf("%w: task key %q contains NUL", types.ErrInvalidArgument, task.Key)
		}
		if _, ok := index[task.Key]; ok {
			return nil, fmt.Errorf("%w: duplicate task %q", types.ErrInvalidArgument, task.Key)
		}
		index[task.Key] = i
	}

	pending := make([]int, len(tasks))
	dependents := make([][]int, len(tasks))
	for i, task := range tasks {
		for _, dep := range task.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: task %q depends on unknown task %q", types.ErrInvalidArgument, task.Key, dep)
			}
			pending[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var ready []int
	for i := range tasks {
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]JobTask, 0, len(tasks))
	for len(ready) > 0 {
		// Take the earliest ready task in input order.
		pick := 0
		for k := range ready {
			if ready[k] < ready[pick] {
				pick = k
			}
		}
		i := ready[pick]
		ready = append(ready[:pick], ready[pick+1:]...)
		order = append(order, tasks[i])
		for _, j := range dependents[i] {
			pending[j]--
			if pending[j] == 0 {
				ready = append(ready, j)
			}
		}
	}

	if len(order) != len(tasks) {
		return nil, fmt.Errorf("%w: task dependencies contain a cycle", types.ErrInvalidArgument)
	}
	return order, nil
}
