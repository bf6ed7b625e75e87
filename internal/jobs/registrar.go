// Package jobs records print jobs and serves a worker's own job history.
package jobs

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"printshop/internal/apperr"
	"printshop/internal/calc"
	"printshop/internal/events"
	"printshop/internal/retry"
)

var (
	ErrNoMachineAssigned   = apperr.BusinessRule("no_machine_assigned", "Worker has no assigned machine")
	ErrMissingFields       = apperr.Validation("missing_fields", "Job type and description are required")
	ErrIncompatibleJobType = apperr.BusinessRule("incompatible_job_type", "Invalid job type for assigned machine")
	ErrTooPrecise          = apperr.Validation("too_precise", "value must have at most 2 decimal places")
	ErrDescriptionTooLong  = apperr.Validation("description_too_long", "description is too long")
)

// MaxDescription is the longest job description accepted, in characters.
const MaxDescription = 1000

// Store is the persistence the registrar needs.
type Store interface {
	// CompatibleJobType returns the job type when it belongs to the machine
	// type of machineID.
	CompatibleJobType(ctx context.Context, jobTypeID, machineID uint64) (JobTypeRef, bool, error)
	Insert(ctx context.Context, j *Job) error
}

type CreateJobInput struct {
	WorkerID    uint64
	MachineID   *uint64 // the worker's assigned machine
	JobTypeID   uint64
	Description string
	WidthCm     decimal.NullDecimal
	HeightCm    decimal.NullDecimal
	Quantity    decimal.NullDecimal
	Rate        decimal.NullDecimal // agreed per-job rate
}

func (in CreateJobInput) fields() logrus.Fields {
	f := logrus.Fields{
		"worker_id":   in.WorkerID,
		"job_type_id": in.JobTypeID,
		"width_cm":    nullString(in.WidthCm),
		"height_cm":   nullString(in.HeightCm),
		"quantity":    nullString(in.Quantity),
		"rate":        nullString(in.Rate),
	}
	if in.MachineID != nil {
		f["machine_id"] = *in.MachineID
	}
	return f
}

type Created struct {
	JobID  uint64          `json:"job_id"`
	Amount decimal.Decimal `json:"amount"`
	Calc   calc.Result     `json:"-"`
}

type Registrar struct {
	Store  Store
	Events events.Publisher
	Log    logrus.FieldLogger
	Retry  retry.Policy
	Now    func() time.Time
}

func NewRegistrar(store Store, pub events.Publisher, lg logrus.FieldLogger) *Registrar {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Registrar{Store: store, Events: pub, Log: lg, Retry: retry.Default, Now: time.Now}
}

// CreateJob validates the request, prices it and stores exactly one job.
// The caller supplied rate is charged as is; it is not re-read from pricing.
func (r *Registrar) CreateJob(ctx context.Context, in CreateJobInput) (Created, error) {
	out, err := r.createJob(ctx, in)
	if err != nil {
		entry := r.Log.WithFields(in.fields()).WithError(err)
		if apperr.KindOf(err) == apperr.KindDataAccess || apperr.KindOf(err) == apperr.KindInternal {
			entry.Error("job creation failed")
		} else {
			entry.Info("job rejected")
		}
		return Created{}, err
	}

	r.Log.WithFields(in.fields()).WithFields(logrus.Fields{
		"job_id": out.JobID,
		"amount": out.Amount.StringFixed(2),
	}).Info("job created")

	if err := r.Events.Publish(ctx, events.TopicJobCreated, map[string]any{
		"job_id":      out.JobID,
		"worker_id":   in.WorkerID,
		"machine_id":  *in.MachineID,
		"job_type_id": in.JobTypeID,
		"amount":      out.Amount,
	}); err != nil {
		r.Log.WithError(err).Warn("publish job created event")
	}
	return out, nil
}

func (r *Registrar) createJob(ctx context.Context, in CreateJobInput) (Created, error) {
	if in.MachineID == nil || *in.MachineID == 0 {
		return Created{}, ErrNoMachineAssigned
	}
	desc := strings.TrimSpace(in.Description)
	if in.JobTypeID == 0 {
		return Created{}, ErrMissingFields.WithField("job_type_id")
	}
	if desc == "" {
		return Created{}, ErrMissingFields.WithField("description")
	}
	if utf8.RuneCountInString(desc) > MaxDescription {
		return Created{}, ErrDescriptionTooLong.WithField("description")
	}
	if !in.Rate.Valid || !in.Rate.Decimal.IsPositive() {
		return Created{}, calc.ErrInvalidRate.WithField("rate").WithMessage("Valid rate is required")
	}
	if !calc.FitsPlaces(in.Rate.Decimal, 2) {
		return Created{}, ErrTooPrecise.WithField("rate")
	}

	var jt JobTypeRef
	var ok bool
	err := retry.Do(ctx, r.Retry, func() error {
		var err error
		jt, ok, err = r.Store.CompatibleJobType(ctx, in.JobTypeID, *in.MachineID)
		return err
	})
	if err != nil {
		return Created{}, err
	}
	if !ok {
		return Created{}, ErrIncompatibleJobType.WithField("job_type_id")
	}

	j := Job{
		WorkerID:    &in.WorkerID,
		MachineID:   *in.MachineID,
		JobTypeID:   jt.ID,
		Description: desc,
		Rate:        in.Rate.Decimal,
		CreatedAt:   r.Now(),
	}

	// only the measurements the machine type prices by are kept
	var dims calc.Dimensions
	switch jt.MachineType {
	case calc.LargeFormat:
		dims = calc.Dimensions{WidthCm: in.WidthCm, HeightCm: in.HeightCm}
	case calc.DigitalPress:
		dims = calc.Dimensions{Quantity: in.Quantity}
	}
	res, err := calc.ComputeAmount(jt.MachineType, dims, in.Rate.Decimal)
	if err != nil {
		return Created{}, err
	}

	switch jt.MachineType {
	case calc.LargeFormat:
		if !calc.FitsPlaces(in.WidthCm.Decimal, 2) {
			return Created{}, ErrTooPrecise.WithField("width_cm")
		}
		if !calc.FitsPlaces(in.HeightCm.Decimal, 2) {
			return Created{}, ErrTooPrecise.WithField("height_cm")
		}
		j.WidthCm = in.WidthCm
		j.HeightCm = in.HeightCm
	case calc.DigitalPress:
		q := res.Quantity
		j.Quantity = &q
	}
	j.Amount = res.Amount

	// inserts are not retried: a lost acknowledgement would duplicate the job
	if err := r.Store.Insert(ctx, &j); err != nil {
		return Created{}, err
	}
	return Created{JobID: j.ID, Amount: res.Amount, Calc: res}, nil
}

func nullString(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
