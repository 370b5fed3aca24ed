package matter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipdocket/ipdocket/pkg/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMatterValidate(t *testing.T) {
	tests := []struct {
		name     string
		matter   Matter
		wantErr  bool
		wantCode errors.ErrorCode
	}{
		{
			name:   "valid patent",
			matter: Matter{Caseref: "P1234US00", Country: "US", Category: CategoryPatent},
		},
		{
			name:     "missing caseref",
			matter:   Matter{Country: "US", Category: CategoryPatent},
			wantErr:  true,
			wantCode: errors.ErrCodeMatterRefInvalid,
		},
		{
			name:     "missing country",
			matter:   Matter{Caseref: "P1234US00", Category: CategoryPatent},
			wantErr:  true,
			wantCode: errors.ErrCodeMatterRefInvalid,
		},
		{
			name:     "unknown category",
			matter:   Matter{Caseref: "P1234US00", Country: "US", Category: "XX"},
			wantErr:  true,
			wantCode: errors.ErrCodeMatterRefInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.matter.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.wantCode))
		})
	}
}

func TestMatterKill(t *testing.T) {
	m := &Matter{Caseref: "P1US", Country: "US", Category: CategoryPatent}
	require.False(t, m.Dead)

	now := time.Now()
	m.Kill(now)
	assert.True(t, m.Dead)
	assert.Equal(t, now, m.UpdatedAt)
}

func TestEventValidate(t *testing.T) {
	e := &Event{MatterID: 1, Code: EventFiled, EventDate: date(2024, 3, 1)}
	require.NoError(t, e.Validate())

	e = &Event{Code: EventFiled, EventDate: date(2024, 3, 1)}
	assert.Error(t, e.Validate())

	e = &Event{MatterID: 1, EventDate: date(2024, 3, 1)}
	assert.Error(t, e.Validate())

	e = &Event{MatterID: 1, Code: EventFiled}
	err := e.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEventDateInvalid))
}

func TestEarliestPriorityDate(t *testing.T) {
	events := []*Event{
		{Code: EventFiled, EventDate: date(2024, 5, 1)},
		{Code: EventPriority, EventDate: date(2023, 6, 15)},
		{Code: EventPriority, EventDate: date(2023, 4, 2)},
	}

	got := EarliestPriorityDate(events)
	require.NotNil(t, got)
	assert.Equal(t, date(2023, 4, 2), *got)

	assert.Nil(t, EarliestPriorityDate([]*Event{{Code: EventFiled, EventDate: date(2024, 5, 1)}}))
	assert.Nil(t, EarliestPriorityDate(nil))
}

func TestHasEvent(t *testing.T) {
	events := []*Event{
		{Code: EventFiled, EventDate: date(2024, 5, 1)},
		{Code: EventGranted, EventDate: date(2026, 1, 10)},
	}

	assert.True(t, HasEvent(events, EventGranted))
	assert.False(t, HasEvent(events, EventExpiry))
}

func TestEventRegistry(t *testing.T) {
	r := NewEventRegistry()

	info, err := r.Get(EventFiled)
	require.NoError(t, err)
	assert.Equal(t, EventFiled, info.Code)
	assert.False(t, info.Killer)

	assert.True(t, r.IsKiller(EventAbandoned))
	assert.True(t, r.IsKiller(EventExpiry))
	assert.True(t, r.IsKiller(EventLapsed))
	assert.False(t, r.IsKiller(EventRenewal))
	assert.False(t, r.IsKiller(EventCode("ZZZ")))

	_, err = r.Get(EventCode("ZZZ"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEventCodeInvalid))

	r.Register(&EventInfo{Code: "OPP", Name: "Opposition filed", Killer: false})
	info, err = r.Get("OPP")
	require.NoError(t, err)
	assert.Equal(t, "Opposition filed", info.Name)

	list := r.List()
	assert.GreaterOrEqual(t, len(list), 13)
}
