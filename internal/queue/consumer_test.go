package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/require"
)

func TestFormatAuditLine(t *testing.T) {
	line := FormatAuditLine(ReservationEvent{
		Kind:           ReservationUpdated,
		ReservationID:  12,
		TripID:         3,
		StudentID:      40,
		ActorID:        7,
		ActorRole:      "DRIVER",
		FromStatus:     "ACCEPTED",
		ToStatus:       "CANCELLED",
		SeatDelta:      1,
		AvailableSeats: 1,
		OccurredAt:     "2026-10-18T10:00:00Z",
	})
	require.Equal(t,
		"[2026-10-18T10:00:00Z] reservation.updated | reservation_id=12 | trip_id=3 | student_id=40 | actor=DRIVER#7 | status=ACCEPTED->CANCELLED | seat_delta=+1 | available=1\n",
		line)
}

func TestFormatAuditLineNoOpShowsSingleStatus(t *testing.T) {
	line := FormatAuditLine(ReservationEvent{Kind: ReservationCreated, ToStatus: "REQUESTED", SeatDelta: -1})
	require.Contains(t, line, "status=REQUESTED |")
	require.Contains(t, line, "seat_delta=-1")
}

func TestAuditConsumerHandleAppends(t *testing.T) {
	dir := t.TempDir()
	c := &AuditConsumer{Dir: dir, Logger: log.New("test")}

	for _, kind := range []string{ReservationCreated, ReservationDeleted} {
		body, err := json.Marshal(ReservationEvent{Kind: kind, ReservationID: 1, TripID: 2})
		require.NoError(t, err)
		require.NoError(t, c.handle(body))
	}

	raw, err := os.ReadFile(filepath.Join(dir, "reservations.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], ReservationCreated)
	require.Contains(t, lines[1], ReservationDeleted)
}

func TestAuditConsumerRejectsMalformed(t *testing.T) {
	c := &AuditConsumer{Dir: t.TempDir(), Logger: log.New("test")}
	require.Error(t, c.handle([]byte("{not json")))
}
