package scheduler

import (
	"context"
	"sync"
	"time"

	"azanbot/internal/eventbus"
	"azanbot/internal/task/engine"
	"azanbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

type Config struct {
	Enabled bool
	// Location for cron evaluation. Nil means clock.IST.
	Location *time.Location
}

type TaskOptions = engine.TaskOptions

const (
	OverlapAllow         = engine.OverlapAllow
	OverlapSkipIfRunning = engine.OverlapSkipIfRunning
)

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
	opt     TaskOptions
	state   *engine.RunState
}

// onceDef survives Stop so pending one-shots resume on the next Start.
type onceDef struct {
	at      time.Time
	timeout time.Duration
	opt     TaskOptions
	job     func(ctx context.Context) error
	ver     uint64
	timer   *time.Timer
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	engine *engine.Service

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time

	tmu     sync.Mutex
	once    map[string]*onceDef
	onceSeq uint64
	running bool
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Enabled     bool
	Timezone    string
	Schedules   []ScheduleInfo
	PendingOnce int
	Engine      engine.Snapshot
}
