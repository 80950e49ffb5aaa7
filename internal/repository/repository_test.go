package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *Repos) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, New(sqlx.NewDb(db, "pgx"))
}

func f64(v float64) *float64 { return &v }

func TestListDevices(t *testing.T) {
	mock, repo := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "name", "topic", "rack_id", "containment_id", "type"}).
		AddRow(1, "Rack A Sensor", "dc/sensors/rack-a", 10, 3, "sensor").
		AddRow(2, "Door Camera", "", 0, 0, "camera")
	mock.ExpectQuery(`SELECT\s+d.id`).WillReturnRows(rows)

	devices, err := repo.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, int64(3), devices[0].ContainmentID)
	assert.True(t, devices[0].IsSensor())
	assert.Equal(t, domain.DeviceTypeCamera, devices[1].Type)
	assert.False(t, devices[1].HasTopic())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceByID_NotFound(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectQuery(`WHERE d.id = \$1`).WithArgs(int64(42)).WillReturnError(sql.ErrNoRows)

	_, err := repo.DeviceByID(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListIntervalConfigurations(t *testing.T) {
	mock, repo := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "target_type", "target_id", "interval_minutes", "enabled"}).
		AddRow(1, "Global", nil, 60, true).
		AddRow(2, "Containment", 3, 30, true).
		AddRow(3, "Device", 7, 1, true)
	mock.ExpectQuery(`FROM interval_configurations`).WillReturnRows(rows)

	cfgs, err := repo.ListIntervalConfigurations(context.Background())
	require.NoError(t, err)
	require.Len(t, cfgs, 3)
	assert.Equal(t, domain.GlobalScope{}, cfgs[0].Scope)
	assert.Equal(t, domain.ContainmentScope{ContainmentID: 3}, cfgs[1].Scope)
	assert.Equal(t, domain.DeviceScope{DeviceID: 7}, cfgs[2].Scope)
	assert.Equal(t, 1, cfgs[2].IntervalMinutes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListIntervalConfigurations_BadScope(t *testing.T) {
	mock, repo := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "target_type", "target_id", "interval_minutes", "enabled"}).
		AddRow(1, "Device", nil, 60, true)
	mock.ExpectQuery(`FROM interval_configurations`).WillReturnRows(rows)

	_, err := repo.ListIntervalConfigurations(context.Background())
	assert.Error(t, err)
}

func TestListThresholdConfigurations(t *testing.T) {
	mock, repo := setupMockDB(t)

	rows := sqlmock.NewRows([]string{
		"id", "target_type", "target_id", "metric",
		"cold_min", "cold_max", "normal_min", "normal_max", "warm_min", "warm_max",
		"hot_min", "hot_max", "critical_min", "critical_max",
		"upper_threshold", "lower_threshold",
		"check_enabled", "auto_save_upper", "auto_save_lower", "notification_enabled", "enabled",
	}).AddRow(
		5, "Global", nil, "temperature",
		0.0, 18.0, 18.0, 30.0, 30.0, 35.0, 35.0, 40.0, 40.0, 100.0,
		30.0, 22.0,
		true, true, true, false, true,
	)
	mock.ExpectQuery(`FROM threshold_configurations`).WillReturnRows(rows)

	cfgs, err := repo.ListThresholdConfigurations(context.Background())
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	cfg := cfgs[0]
	assert.Equal(t, domain.MetricTemperature, cfg.Metric)
	assert.Equal(t, domain.BandRange{Min: 30, Max: 35}, cfg.Ranges[2])
	require.NotNil(t, cfg.Upper)
	assert.Equal(t, 30.0, *cfg.Upper)
	assert.True(t, cfg.AutoSaveLower)
	assert.NoError(t, cfg.Validate())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSample(t *testing.T) {
	mock, repo := setupMockDB(t)

	ts := time.Date(2025, 3, 1, 10, 15, 2, 0, time.UTC)
	s := &domain.SensorSample{
		DeviceID:    7,
		Timestamp:   ts,
		ReceivedAt:  ts.Add(time.Second),
		Temperature: f64(24.5),
		RawPayload:  []byte(`{"temp":24.5}`),
	}
	mock.ExpectQuery(`INSERT INTO sensor_samples`).
		WithArgs(int64(7), ts, ts.Add(time.Second), 24.5, nil, `{"temp":24.5}`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(99))

	require.NoError(t, repo.InsertSample(context.Background(), s))
	assert.Equal(t, int64(99), s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSample_None(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectQuery(`FROM sensor_samples`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "timestamp", "received_at", "temperature", "humidity", "raw_payload"}))

	s, err := repo.LatestSample(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSample(t *testing.T) {
	mock, repo := setupMockDB(t)

	ts := time.Date(2025, 3, 1, 10, 15, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM sensor_samples`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "timestamp", "received_at", "temperature", "humidity", "raw_payload"}).
			AddRow(3, 7, ts, ts, 21.0, nil, []byte(`{}`)))

	s, err := repo.LatestSample(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, ts, s.Timestamp)
	assert.Nil(t, s.Humidity)
	assert.JSONEq(t, `{}`, string(s.RawPayload))
}

func TestSampleExistsBetween(t *testing.T) {
	mock, repo := setupMockDB(t)

	from := time.Date(2025, 3, 1, 10, 15, 0, 0, time.UTC)
	to := from.Add(5 * time.Second)
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(int64(7), from, to).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.SampleExistsBetween(context.Background(), 7, from, to)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInsertAutoSaveLog(t *testing.T) {
	mock, repo := setupMockDB(t)

	e := &domain.AutoSaveLogEntry{
		SampleID:        99,
		DeviceID:        7,
		ConfigurationID: 5,
		Reason:          domain.TriggerUpperThreshold,
		Metric:          domain.MetricTemperature,
		MeasuredValue:   f64(33),
		ThresholdValue:  f64(30),
		Status:          domain.BandWarm,
	}
	mock.ExpectQuery(`INSERT INTO auto_save_logs`).
		WithArgs(int64(99), int64(7), int64(5), "UpperThreshold", "temperature", 33.0, 30.0, "warm", false, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

	require.NoError(t, repo.InsertAutoSaveLog(context.Background(), e))
	assert.Equal(t, int64(12), e.ID)
	assert.False(t, e.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNotified_Missing(t *testing.T) {
	mock, repo := setupMockDB(t)

	at := time.Now()
	mock.ExpectExec(`UPDATE auto_save_logs`).WithArgs(int64(12), at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkNotified(context.Background(), 12, at)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListAutoSaveLogs_ClampsLimit(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectQuery(`FROM auto_save_logs`).WithArgs(int64(7), maxLogLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.ListAutoSaveLogs(context.Background(), 7, 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertActivityStatus(t *testing.T) {
	mock, repo := setupMockDB(t)

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`ON CONFLICT \(device_id\) DO UPDATE`).
		WithArgs(int64(7), "Offline", now.Add(-11*time.Minute), now, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertActivityStatus(context.Background(), domain.DeviceActivityStatus{
		DeviceID:            7,
		State:               domain.StateOffline,
		LastSeen:            now.Add(-11 * time.Minute),
		LastStatusChange:    now,
		ConsecutiveFailures: 1,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenEmergencyEvents(t *testing.T) {
	mock, repo := setupMockDB(t)

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM emergency_events`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "channel", "containment_id", "status", "start_time", "end_time", "duration_ms", "is_open", "raw_payload"}).
			AddRow(4, "FSS", 0, true, start, nil, nil, true, nil))

	events, err := repo.OpenEmergencyEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ChannelFSS, events[0].Channel)
	assert.True(t, events[0].IsOpen)
	assert.Nil(t, events[0].Duration)
}

func TestCloseEmergencyEvent(t *testing.T) {
	mock, repo := setupMockDB(t)

	ev := domain.EmergencyEvent{ID: 4, Channel: domain.ChannelFSS, StartTime: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), IsOpen: true, Status: true}
	ev.Close(ev.StartTime.Add(90 * time.Second))

	mock.ExpectExec(`UPDATE emergency_events`).
		WithArgs(int64(4), *ev.EndTime, int64(90000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CloseEmergencyEvent(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}
