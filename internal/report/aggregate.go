// Package report builds the admin daily views from stored jobs. Aggregates
// are recomputed on every read in exact decimal arithmetic.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"printshop/internal/apperr"
	"printshop/internal/jobs"
	"printshop/internal/retry"
)

var ErrInvalidDate = apperr.Validation("invalid_date", "date must be YYYY-MM-DD")

type Source interface {
	// JobsBetween returns jobs with from <= created_at < to, newest first.
	JobsBetween(ctx context.Context, from, to time.Time) ([]JobRow, error)
	Machines(ctx context.Context) ([]MachineRow, error)
	Workers(ctx context.Context) ([]WorkerRow, error)
	JobTypes(ctx context.Context) ([]JobTypeRow, error)
}

type Aggregator struct {
	Source   Source
	Location *time.Location
	Log      logrus.FieldLogger
	Retry    retry.Policy
}

func NewAggregator(src Source, loc *time.Location, lg logrus.FieldLogger) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{Source: src, Location: loc, Log: lg, Retry: retry.Default}
}

func (a *Aggregator) window(date string) (time.Time, time.Time, error) {
	from, to, err := jobs.Day(date, a.Location)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidDate.WithField("date")
	}
	return from, to, nil
}

func (a *Aggregator) jobs(ctx context.Context, date string) ([]JobRow, error) {
	from, to, err := a.window(date)
	if err != nil {
		return nil, err
	}
	var rows []JobRow
	err = retry.Do(ctx, a.Retry, func() error {
		var err error
		rows, err = a.Source.JobsBetween(ctx, from, to)
		return err
	})
	return rows, err
}

// Daily builds all five views. The four reads are independent and run in
// parallel.
func (a *Aggregator) Daily(ctx context.Context, date string) (Daily, error) {
	from, to, err := a.window(date)
	if err != nil {
		return Daily{}, err
	}

	var (
		jobRows  []JobRow
		machines []MachineRow
		workers  []WorkerRow
		types    []JobTypeRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return retry.Do(gctx, a.Retry, func() error {
			var err error
			jobRows, err = a.Source.JobsBetween(gctx, from, to)
			return err
		})
	})
	g.Go(func() error {
		return retry.Do(gctx, a.Retry, func() error {
			var err error
			machines, err = a.Source.Machines(gctx)
			return err
		})
	})
	g.Go(func() error {
		return retry.Do(gctx, a.Retry, func() error {
			var err error
			workers, err = a.Source.Workers(gctx)
			return err
		})
	})
	g.Go(func() error {
		return retry.Do(gctx, a.Retry, func() error {
			var err error
			types, err = a.Source.JobTypes(gctx)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		a.Log.WithError(err).WithField("date", date).Error("build daily report")
		return Daily{}, err
	}

	return Daily{
		Date:     date,
		Summary:  Summarize(date, jobRows),
		Machines: ByMachine(machines, jobRows),
		Workers:  ByWorker(workers, jobRows),
		JobTypes: ByJobType(types, jobRows),
		Jobs:     Detailed(jobRows),
	}, nil
}

func (a *Aggregator) DailySummary(ctx context.Context, date string) (DailySummary, error) {
	rows, err := a.jobs(ctx, date)
	if err != nil {
		return DailySummary{}, err
	}
	return Summarize(date, rows), nil
}

func (a *Aggregator) MachineSummary(ctx context.Context, date string) ([]MachineSummary, error) {
	d, err := a.Daily(ctx, date)
	return d.Machines, err
}

func (a *Aggregator) WorkerSummary(ctx context.Context, date string) ([]WorkerSummary, error) {
	d, err := a.Daily(ctx, date)
	return d.Workers, err
}

func (a *Aggregator) JobTypeSummary(ctx context.Context, date string) ([]JobTypeSummary, error) {
	d, err := a.Daily(ctx, date)
	return d.JobTypes, err
}

func (a *Aggregator) DetailedJobs(ctx context.Context, date string) ([]JobRow, error) {
	rows, err := a.jobs(ctx, date)
	if err != nil {
		return nil, err
	}
	return Detailed(rows), nil
}

// Pure views.

// Summarize totals a day's jobs. An empty day yields zeros.
func Summarize(date string, rows []JobRow) DailySummary {
	s := DailySummary{Date: date, TotalRevenue: decimal.Zero}
	workers := map[uint64]struct{}{}
	machines := map[uint64]struct{}{}
	for _, j := range rows {
		s.TotalJobs++
		s.TotalRevenue = s.TotalRevenue.Add(j.Amount)
		if j.WorkerID != nil {
			workers[*j.WorkerID] = struct{}{}
		}
		machines[j.MachineID] = struct{}{}
	}
	s.ActiveWorkers = len(workers)
	s.ActiveMachines = len(machines)
	return s
}

type tally struct {
	count int64
	total decimal.Decimal
}

func (t *tally) add(amount decimal.Decimal) {
	t.count++
	t.total = t.total.Add(amount)
}

// ByMachine lists every machine, including idle ones, by revenue.
func ByMachine(machines []MachineRow, rows []JobRow) []MachineSummary {
	t := map[uint64]*tally{}
	for _, j := range rows {
		if t[j.MachineID] == nil {
			t[j.MachineID] = &tally{total: decimal.Zero}
		}
		t[j.MachineID].add(j.Amount)
	}
	out := make([]MachineSummary, 0, len(machines))
	for _, m := range machines {
		s := MachineSummary{MachineID: m.ID, MachineName: m.Name, MachineType: m.Type, TotalRevenue: decimal.Zero}
		if x := t[m.ID]; x != nil {
			s.JobCount, s.TotalRevenue = x.count, x.total
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, k int) bool {
		return byRevenue(out[i].TotalRevenue, out[k].TotalRevenue, out[i].MachineName, out[k].MachineName, out[i].MachineID, out[k].MachineID)
	})
	return out
}

// ByWorker lists every worker account, including idle ones, by revenue. Jobs
// of deleted workers count toward no row.
func ByWorker(workers []WorkerRow, rows []JobRow) []WorkerSummary {
	t := map[uint64]*tally{}
	for _, j := range rows {
		if j.WorkerID == nil {
			continue
		}
		if t[*j.WorkerID] == nil {
			t[*j.WorkerID] = &tally{total: decimal.Zero}
		}
		t[*j.WorkerID].add(j.Amount)
	}
	out := make([]WorkerSummary, 0, len(workers))
	for _, w := range workers {
		s := WorkerSummary{WorkerID: w.ID, WorkerName: w.Name, Username: w.Username, MachineName: w.MachineName, TotalRevenue: decimal.Zero}
		if x := t[w.ID]; x != nil {
			s.JobCount, s.TotalRevenue = x.count, x.total
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, k int) bool {
		return byRevenue(out[i].TotalRevenue, out[k].TotalRevenue, out[i].WorkerName, out[k].WorkerName, out[i].WorkerID, out[k].WorkerID)
	})
	return out
}

// ByJobType lists every job type with its average job amount.
func ByJobType(types []JobTypeRow, rows []JobRow) []JobTypeSummary {
	t := map[uint64]*tally{}
	for _, j := range rows {
		if t[j.JobTypeID] == nil {
			t[j.JobTypeID] = &tally{total: decimal.Zero}
		}
		t[j.JobTypeID].add(j.Amount)
	}
	out := make([]JobTypeSummary, 0, len(types))
	for _, jt := range types {
		s := JobTypeSummary{
			JobTypeID:      jt.ID,
			JobTypeName:    jt.Name,
			MachineType:    jt.MachineType,
			Unit:           jt.Unit,
			TotalRevenue:   decimal.Zero,
			AverageRevenue: decimal.Zero,
		}
		if x := t[jt.ID]; x != nil {
			s.JobCount, s.TotalRevenue = x.count, x.total
			s.AverageRevenue = x.total.DivRound(decimal.NewFromInt(x.count), 2)
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, k int) bool {
		return byRevenue(out[i].TotalRevenue, out[k].TotalRevenue, out[i].JobTypeName, out[k].JobTypeName, out[i].JobTypeID, out[k].JobTypeID)
	})
	return out
}

// Detailed orders jobs newest first.
func Detailed(rows []JobRow) []JobRow {
	out := make([]JobRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].ID > out[k].ID
	})
	return out
}

// byRevenue orders by revenue desc, then name and id asc.
func byRevenue(ra, rb decimal.Decimal, na, nb string, ia, ib uint64) bool {
	if c := ra.Cmp(rb); c != 0 {
		return c > 0
	}
	if na != nb {
		return na < nb
	}
	return ia < ib
}
