// Package queuemodel implements the queueing-delay disciplines shared by
// every contended server in the simulator (DRAM controllers today; any
// future shmem-message sink tomorrow).
package queuemodel

import (
	"fmt"

	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/simtime"
)

// DefaultHistoryListSize is the default bound on the history-list
// discipline's rolling window.
const DefaultHistoryListSize = 100

//go:generate mockgen -write_package_comment=false -mock_names=Model=MockQueueModel -package=dramperf -destination=../dramperf/mock_queuemodel_test.go github.com/sarchlab/carbonsim/queuemodel Model

// Model computes the additional waiting time a requester experiences
// before it can start service, given when it arrived and how long it will
// take to be serviced. Implementations must be monotone (busy-until never
// goes backwards) and must never depend on arrivals that haven't happened
// yet.
type Model interface {
	// ComputeDelay returns the delay the requester must wait before
	// service can begin, given its arrival time and service duration.
	ComputeDelay(arrival, service simtime.SimTime, requester ids.CoreID) simtime.SimTime
}

// Discipline names a queueing discipline, validated at construction time;
// an unrecognized discipline is a fatal configuration error.
type Discipline string

const (
	None        Discipline = "none"
	HistoryList Discipline = "history_list"
	Basic       Discipline = "basic"
)

// Config configures queue model construction.
type Config struct {
	Discipline     Discipline
	HistoryListMax int // 0 defaults to DefaultHistoryListSize
}

// New constructs a Model for the given discipline. An unrecognized
// discipline panics: it is a programmer/config error discovered at
// construction time, not a runtime condition.
func New(cfg Config) Model {
	switch cfg.Discipline {
	case None, "":
		return &noneModel{}
	case HistoryList:
		max := cfg.HistoryListMax
		if max <= 0 {
			max = DefaultHistoryListSize
		}
		return &historyListModel{maxSize: max}
	case Basic:
		return &basicModel{}
	default:
		panic(fmt.Sprintf("queuemodel: unknown discipline %q", cfg.Discipline))
	}
}

// noneModel always returns zero delay.
type noneModel struct{}

func (*noneModel) ComputeDelay(simtime.SimTime, simtime.SimTime, ids.CoreID) simtime.SimTime {
	return simtime.Zero
}

// interval is a (start, end) busy window recorded by the history-list
// discipline.
type interval struct {
	start, end simtime.SimTime
}

// historyListModel keeps a single bounded window of recent (start,end)
// service intervals for the server this Model instance represents (one
// DRAM controller, one router). Every requester contending for that
// server shares the same window, so two different cores' accesses to the
// same controller queue behind each other exactly as they would contend
// for real bandwidth.
// Delay is computed against the latest busy-until recorded in the
// window; the oldest entry is evicted once the window is full.
type historyListModel struct {
	maxSize int
	window  []interval
}

func (m *historyListModel) ComputeDelay(
	arrival, service simtime.SimTime, _ ids.CoreID,
) simtime.SimTime {
	busyUntil := simtime.Zero
	if len(m.window) > 0 {
		busyUntil = m.window[len(m.window)-1].end
	}

	delay := simtime.Zero
	if busyUntil.After(arrival) {
		delay = busyUntil.Sub(arrival)
	}

	start := arrival.Add(delay)
	end := start.Add(service)

	m.window = append(m.window, interval{start: start, end: end})
	if len(m.window) > m.maxSize {
		m.window = m.window[len(m.window)-m.maxSize:]
	}

	return delay
}

// basicModel keeps a single busy-until watermark for the server this
// Model instance represents, shared across every requester that contends
// for it.
type basicModel struct {
	busyUntil simtime.SimTime
}

func (m *basicModel) ComputeDelay(
	arrival, service simtime.SimTime, _ ids.CoreID,
) simtime.SimTime {
	delay := simtime.Zero
	if m.busyUntil.After(arrival) {
		delay = m.busyUntil.Sub(arrival)
	}

	m.busyUntil = arrival.Add(delay).Add(service)

	return delay
}
