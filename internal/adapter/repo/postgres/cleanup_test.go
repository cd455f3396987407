package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupService_CleanupOldData(t *testing.T) {
	p := &poolStub{execTag: pgconn.NewCommandTag("DELETE 12")}
	s := NewCleanupService(p, 30)
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	n, err := s.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.Contains(t, p.calls[0].sql, "DELETE FROM chat_logs")
	assert.Equal(t, now.AddDate(0, 0, -30), p.calls[0].args[0])
}

func TestCleanupService_DefaultsAndErrors(t *testing.T) {
	s := NewCleanupService(&poolStub{execErr: errors.New("down")}, 0)
	assert.Equal(t, 90, s.RetentionDays)
	_, err := s.CleanupOldData(context.Background())
	assert.ErrorContains(t, err, "op=cleanup.run")
}

func TestCleanupService_RunPeriodicStopsOnCancel(t *testing.T) {
	p := &poolStub{execTag: pgconn.NewCommandTag("DELETE 0")}
	s := NewCleanupService(p, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunPeriodic(ctx, time.Hour)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not stop")
	}
}
