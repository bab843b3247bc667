package events

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewNATSPublisherWithoutConnectionDropsEvents(t *testing.T) {
	publisher := NewNATSPublisher(nil, "gema:grading", zerolog.Nop())
	require.NoError(t, publisher.Publish(context.Background(), SubjectSubmissionGraded, map[string]int{"id": 1}))
	require.IsType(t, nopPublisher{}, publisher)
}

func TestRecorderKeepsOrder(t *testing.T) {
	recorder := &Recorder{}
	ctx := WithCorrelationID(context.Background(), "abc")
	require.Equal(t, "abc", correlationID(ctx))

	require.NoError(t, recorder.Publish(ctx, SubjectQuizCompleted, 1))
	require.NoError(t, recorder.Publish(ctx, SubjectStreakMilestone, 2))
	require.Equal(t, []string{SubjectQuizCompleted, SubjectStreakMilestone}, recorder.Subjects())
	require.Equal(t, 2, recorder.Events()[1].Payload)
}
