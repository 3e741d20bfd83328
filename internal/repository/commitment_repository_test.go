package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func TestCommitmentRepositoryListAllTerms(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCommitmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_slots ss JOIN schedules s ON s.id = ss.schedule_id")).
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "day_of_week", "start_time", "end_time"}).
			AddRow("teacher-1", 2, "08:00:00", "10:00:00"))

	commitments, err := repo.ListCommitments(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []scheduler.Commitment{{TeacherID: "teacher-1", Day: 2, Slot: scheduler.Catalog[0]}}, commitments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitmentRepositoryListExcludesTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCommitmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.academic_year_id <> $1")).
		WithArgs("year-1").
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "day_of_week", "start_time", "end_time"}))

	commitments, err := repo.ListCommitments(context.Background(), "year-1")
	require.NoError(t, err)
	assert.Empty(t, commitments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitmentRepositoryListRejectsBadTimes(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCommitmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_slots ss")).
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "day_of_week", "start_time", "end_time"}).
			AddRow("teacher-1", 2, "noon", "10:00:00"))

	_, err := repo.ListCommitments(context.Background(), "")
	assert.Error(t, err)
}

func TestCommitmentRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCommitmentRepository(db)
	commitment := scheduler.Commitment{TeacherID: "teacher-1", Day: 4, Slot: scheduler.Catalog[4]}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE ss.teacher_id = $1 AND ss.day_of_week = $2 AND ss.start_time = $3 AND ss.end_time = $4)")).
		WithArgs("teacher-1", 4, "16:00:00", "18:00:00").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	exists, err := repo.CommitmentExists(context.Background(), commitment, "")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("AND s.academic_year_id <> $5)")).
		WithArgs("teacher-1", 4, "16:00:00", "18:00:00", "year-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	exists, err = repo.CommitmentExists(context.Background(), commitment, "year-1")
	require.NoError(t, err)
	assert.False(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnError(errors.New("connection reset"))
	_, err = repo.CommitmentExists(context.Background(), commitment, "")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitmentRepositoryListDoubleBookings(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCommitmentRepository(db)

	columns := []string{"teacher_id", "teacher_name", "day_of_week", "start_time", "end_time",
		"schedule_id", "schedule_name", "academic_year_id", "course_id", "course_name"}
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY teacher_id, day_of_week, start_time, end_time HAVING COUNT(*) > 1")).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("teacher-1", "Ada", 0, "08:00:00", "10:00:00", "sched-1", "Year 1", "year-1", "algebra", "Algebra").
			AddRow("teacher-1", "Ada", 0, "08:00:00", "10:00:00", "sched-2", "Year 2", "year-2", "geometry", "Geometry"))

	bookings, err := repo.ListDoubleBookings(context.Background())
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, "Ada", bookings[0].TeacherName)
	assert.Equal(t, "year-2", bookings[1].AcademicYearID)
	assert.Equal(t, "Geometry", bookings[1].CourseName)

	mock.ExpectQuery(regexp.QuoteMeta("HAVING COUNT(*) > 1")).
		WillReturnError(errors.New("connection reset"))
	_, err = repo.ListDoubleBookings(context.Background())
	assert.ErrorContains(t, err, "list double bookings")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewRunCacheRepository(nil, nil)

	_, err := repo.Get(context.Background(), "run-1")
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Put(context.Background(), &dto.TimetableRun{ID: "run-1"}, 0))
	assert.NoError(t, repo.Delete(context.Background(), "run-1"))
	assert.NoError(t, repo.Close())
	assert.Equal(t, "timetable:run:run-1", runKey("run-1"))
}
