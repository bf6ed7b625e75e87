package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printshop/internal/apperr"
	"printshop/internal/calc"
	"printshop/internal/logging"
)

type machine struct {
	id  uint64
	typ string
}

type fakeStore struct {
	machines map[uint64]machine
	jobTypes map[uint64]JobTypeRef

	lookups   int
	lookupErr []error
	insertErr error
	inserted  []Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		machines: map[uint64]machine{
			1: {1, calc.LargeFormat},
			2: {2, calc.DigitalPress},
		},
		jobTypes: map[uint64]JobTypeRef{
			10: {ID: 10, Name: "Banner", Unit: "sqm", MachineType: calc.LargeFormat},
			20: {ID: 20, Name: "Flyers", Unit: "piece", MachineType: calc.DigitalPress},
		},
	}
}

func (s *fakeStore) CompatibleJobType(_ context.Context, jobTypeID, machineID uint64) (JobTypeRef, bool, error) {
	s.lookups++
	if len(s.lookupErr) > 0 {
		err := s.lookupErr[0]
		s.lookupErr = s.lookupErr[1:]
		return JobTypeRef{}, false, err
	}
	jt, ok := s.jobTypes[jobTypeID]
	m, mok := s.machines[machineID]
	if !ok || !mok || jt.MachineType != m.typ {
		return JobTypeRef{}, false, nil
	}
	return jt, true, nil
}

func (s *fakeStore) Insert(_ context.Context, j *Job) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	j.ID = uint64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, *j)
	return nil
}

type recordingPublisher struct{ topics []string }

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.topics = append(p.topics, topic)
	return nil
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func ptr(v uint64) *uint64 { return &v }

func newTestRegistrar(store *fakeStore) (*Registrar, *recordingPublisher) {
	pub := &recordingPublisher{}
	r := NewRegistrar(store, pub, logging.Discard())
	r.Retry.Base = time.Millisecond
	r.Now = func() time.Time { return time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC) }
	return r, pub
}

func TestCreateJob_Banner(t *testing.T) {
	store := newFakeStore()
	r, pub := newTestRegistrar(store)

	out, err := r.CreateJob(context.Background(), CreateJobInput{
		WorkerID:    7,
		MachineID:   ptr(1),
		JobTypeID:   10,
		Description: "Shop banner",
		WidthCm:     dec("200"),
		HeightCm:    dec("100"),
		Quantity:    dec("3"), // ignored for area-priced jobs
		Rate:        dec("50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "100.00", out.Amount.StringFixed(2))
	assert.Equal(t, uint64(1), out.JobID)

	require.Len(t, store.inserted, 1)
	j := store.inserted[0]
	assert.Equal(t, uint64(7), *j.WorkerID)
	assert.Nil(t, j.Quantity)
	assert.True(t, j.WidthCm.Valid)
	assert.True(t, j.Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, []string{"job.created"}, pub.topics)
}

func TestCreateJob_Flyers(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestRegistrar(store)

	out, err := r.CreateJob(context.Background(), CreateJobInput{
		WorkerID:    8,
		MachineID:   ptr(2),
		JobTypeID:   20,
		Description: "Flyers for event",
		WidthCm:     dec("21"),
		Quantity:    dec("500"),
		Rate:        dec("0.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, "250.00", out.Amount.StringFixed(2))

	j := store.inserted[0]
	require.NotNil(t, j.Quantity)
	assert.Equal(t, int64(500), *j.Quantity)
	assert.False(t, j.WidthCm.Valid)
}

func TestCreateJob_PreconditionOrder(t *testing.T) {
	valid := CreateJobInput{
		WorkerID: 7, MachineID: ptr(1), JobTypeID: 10, Description: "x",
		WidthCm: dec("10"), HeightCm: dec("10"), Rate: dec("5"),
	}
	cases := []struct {
		name  string
		edit  func(*CreateJobInput)
		want  error
		field string
	}{
		{"no machine", func(in *CreateJobInput) { in.MachineID = nil; in.JobTypeID = 0; in.Rate = decimal.NullDecimal{} }, ErrNoMachineAssigned, ""},
		{"zero machine", func(in *CreateJobInput) { in.MachineID = ptr(0) }, ErrNoMachineAssigned, ""},
		{"missing job type", func(in *CreateJobInput) { in.JobTypeID = 0; in.Rate = dec("0") }, ErrMissingFields, "job_type_id"},
		{"blank description", func(in *CreateJobInput) { in.Description = "   "; in.Rate = dec("0") }, ErrMissingFields, "description"},
		{"long description", func(in *CreateJobInput) { in.Description = strings.Repeat("a", MaxDescription+1) }, ErrDescriptionTooLong, "description"},
		{"missing rate", func(in *CreateJobInput) { in.Rate = decimal.NullDecimal{}; in.JobTypeID = 20 }, calc.ErrInvalidRate, "rate"},
		{"negative rate", func(in *CreateJobInput) { in.Rate = dec("-2"); in.JobTypeID = 20 }, calc.ErrInvalidRate, "rate"},
		{"too precise rate", func(in *CreateJobInput) { in.Rate = dec("1.234") }, ErrTooPrecise, "rate"},
		{"incompatible", func(in *CreateJobInput) { in.JobTypeID = 20; in.WidthCm = dec("0") }, ErrIncompatibleJobType, "job_type_id"},
		{"unknown job type", func(in *CreateJobInput) { in.JobTypeID = 99 }, ErrIncompatibleJobType, "job_type_id"},
		{"bad dimensions", func(in *CreateJobInput) { in.WidthCm = dec("0") }, calc.ErrInvalidDimensions, "width_cm"},
		{"missing height", func(in *CreateJobInput) { in.HeightCm = decimal.NullDecimal{} }, calc.ErrInvalidDimensions, "height_cm"},
		{"too precise width", func(in *CreateJobInput) { in.WidthCm = dec("10.555") }, ErrTooPrecise, "width_cm"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			r, pub := newTestRegistrar(store)
			in := valid
			tc.edit(&in)

			_, err := r.CreateJob(context.Background(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			if tc.field != "" {
				e, ok := apperr.As(err)
				require.True(t, ok)
				assert.Equal(t, tc.field, e.Field)
			}
			assert.Empty(t, store.inserted)
			assert.Empty(t, pub.topics)
		})
	}
}

func TestCreateJob_FractionalQuantityRejected(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestRegistrar(store)
	_, err := r.CreateJob(context.Background(), CreateJobInput{
		WorkerID: 8, MachineID: ptr(2), JobTypeID: 20, Description: "x",
		Quantity: dec("1.5"), Rate: dec("1"),
	})
	assert.ErrorIs(t, err, calc.ErrInvalidQuantity)
	assert.Empty(t, store.inserted)
}

func TestCreateJob_RetriesLookupButNotInsert(t *testing.T) {
	store := newFakeStore()
	store.lookupErr = []error{apperr.ErrUnavailable, apperr.ErrUnavailable}
	r, _ := newTestRegistrar(store)

	in := CreateJobInput{
		WorkerID: 7, MachineID: ptr(1), JobTypeID: 10, Description: "x",
		WidthCm: dec("100"), HeightCm: dec("100"), Rate: dec("10"),
	}
	_, err := r.CreateJob(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 3, store.lookups)

	store.insertErr = apperr.ErrUnavailable.Wrap(errors.New("conn reset"))
	_, err = r.CreateJob(context.Background(), in)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.Len(t, store.inserted, 1)
}

func TestCreateJob_ConstraintViolationNotRetried(t *testing.T) {
	store := newFakeStore()
	store.lookupErr = []error{apperr.ErrMissingReference}
	r, _ := newTestRegistrar(store)

	_, err := r.CreateJob(context.Background(), CreateJobInput{
		WorkerID: 7, MachineID: ptr(1), JobTypeID: 10, Description: "x",
		WidthCm: dec("100"), HeightCm: dec("100"), Rate: dec("10"),
	})
	assert.ErrorIs(t, err, apperr.ErrMissingReference)
	assert.Equal(t, 1, store.lookups)
}
