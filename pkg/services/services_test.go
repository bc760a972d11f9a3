package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sqlcron/sqlcron/pkg/engine/enginetest"
	"github.com/sqlcron/sqlcron/pkg/eventbus"
	"github.com/sqlcron/sqlcron/pkg/groups"
	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/notify"
	"github.com/sqlcron/sqlcron/pkg/persistence/memory"
	"github.com/sqlcron/sqlcron/pkg/sysconfig"
)

type captureDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (d *captureDispatcher) Dispatch(_ context.Context, n notify.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sent = append(d.sent, n)

	return nil
}

func (d *captureDispatcher) last() *notify.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.sent) == 0 {
		return nil
	}

	return &d.sent[len(d.sent)-1]
}

type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGroups() *groups.StaticResolver {
	return groups.NewStaticResolver(map[string]groups.Group{
		"dba": {
			Members:   []string{"alice"},
			Reviewers: []string{"bob", "carol"},
		},
	})
}

type fixture struct {
	store      *memory.Persistence
	engine     *enginetest.Stub
	config     *sysconfig.Service
	dispatcher *captureDispatcher
	publisher  *capturePublisher
	submission *Submission
	control    *Control
}

func newFixture(t *testing.T, cfg sysconfig.Config) *fixture {
	t.Helper()

	config, err := sysconfig.NewService(cfg)
	if err != nil {
		t.Fatalf("failed to build config service: %v", err)
	}

	f := &fixture{
		store:      memory.NewPersistence(),
		engine:     &enginetest.Stub{},
		config:     config,
		dispatcher: &captureDispatcher{},
		publisher:  &capturePublisher{},
	}

	resolver := &enginetest.Resolver{Engine: f.engine, Known: []string{"primary"}}
	logger := testLogger()

	f.submission = NewSubmission(logger, f.store, resolver, testGroups(), config, f.dispatcher, f.publisher)
	f.control = NewControl(logger, f.store, testGroups(), f.dispatcher)

	return f
}

func validRequest() SubmitRequest {
	return SubmitRequest{
		Name:         "nightly rollup",
		GroupID:      "dba",
		Engineer:     "alice",
		InstanceName: "primary",
		DBName:       "app",
		SQLContent:   "update stats set total = total + 1",
		Receivers:    []string{"dave"},
		Schedule: ScheduleSpec{
			Kind:        models.ScheduleKindDaily,
			FirstFireAt: time.Now().Add(time.Hour).UTC(),
		},
	}
}
