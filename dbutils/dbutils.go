// Package dbutils is the notebook utility facade. A DBUtils value exposes
// the filesystem, secrets, widgets, notebook, jobs, credentials, library and
// data groups of one session against a shared Workspace.
package dbutils

import (
	"maps"
	"sync"

	"github.com/fioncat/dbutils/events"
	"github.com/fioncat/dbutils/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type DBUtils struct {
	ws *Workspace

	session string
	args    map[string]string
	job     *jobContext

	logger *logrus.Entry

	fs          *FS
	jobs        *Jobs
	notebook    *Notebook
	secrets     *Secrets
	widgets     *Widgets
	credentials *Credentials
	library     *Library
	data        *Data

	refresh chan events.Event

	roleMu sync.Mutex
	role   string
}

type jobContext struct {
	runID   string
	taskKey string
}

type Option func(u *DBUtils)

// WithSession sets the session ID that scopes widgets, libraries and the
// current role. A random ID is used by default.
func WithSession(id string) Option {
	return func(u *DBUtils) {
		u.session = id
	}
}

// WithArguments binds notebook arguments. A bound argument is the value of
// the widget with the same name.
func WithArguments(args map[string]string) Option {
	return func(u *DBUtils) {
		u.args = maps.Clone(args)
	}
}

// WithJobContext marks the facade as running task taskKey of job run runID,
// which enables task values.
func WithJobContext(runID, taskKey string) Option {
	return func(u *DBUtils) {
		u.job = &jobContext{runID: runID, taskKey: taskKey}
	}
}

func New(ws *Workspace, opts ...Option) *DBUtils {
	u := &DBUtils{ws: ws}
	for _, opt := range opts {
		opt(u)
	}
	if u.session == "" {
		u.session = uuid.NewString()
	}
	if u.args == nil {
		u.args = make(map[string]string)
	}

	fields := logrus.Fields{"Session": u.session}
	if u.job != nil {
		fields["RunID"] = u.job.runID
		fields["Task"] = u.job.taskKey
	}
	u.logger = logrus.WithFields(fields)

	u.refresh = ws.Events.Subscribe()

	u.fs = &FS{u: u}
	u.jobs = &Jobs{u: u, taskValues: &TaskValues{u: u}}
	u.notebook = &Notebook{u: u}
	u.secrets = &Secrets{u: u}
	u.widgets = &Widgets{u: u}
	u.credentials = &Credentials{u: u}
	u.library = &Library{u: u}
	u.data = &Data{u: u}

	return u
}

func (u *DBUtils) FS() *FS { return u.fs }

func (u *DBUtils) Jobs() *Jobs { return u.jobs }

func (u *DBUtils) Notebook() *Notebook { return u.notebook }

func (u *DBUtils) Secrets() *Secrets { return u.secrets }

func (u *DBUtils) Widgets() *Widgets { return u.widgets }

func (u *DBUtils) Credentials() *Credentials { return u.credentials }

func (u *DBUtils) Library() *Library { return u.library }

func (u *DBUtils) Data() *Data { return u.data }

// Session returns the session ID of the facade.
func (u *DBUtils) Session() string { return u.session }

// Help describes every group when method is empty, one group when method
// names it, or one operation given as "group.operation".
func (u *DBUtils) Help(method string) string {
	return rootHelp(method)
}

// Close detaches the facade from the workspace refresh broadcasts.
func (u *DBUtils) Close() {
	u.ws.Events.Unsubscribe(u.refresh)
}

func (u *DBUtils) currentRole() string {
	u.roleMu.Lock()
	defer u.roleMu.Unlock()
	return u.role
}

func (u *DBUtils) setRole(role string) {
	u.roleMu.Lock()
	defer u.roleMu.Unlock()
	u.role = role
}

func observe(group, operation string, err *error) {
	metrics.RecordOperation(group, operation, *err)
}
