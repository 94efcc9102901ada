// source: query.sql

package postgres

import (
	"context"
	"time"
)

const latestRecord = `-- name: LatestRecord :one
SELECT recorded_at, solar_ma, solar_mv, battery_mv, solar_mw, peak_mw, duty, state, energy_mwh
FROM charger_readings
ORDER BY recorded_at DESC
LIMIT 1
`

type LatestRecordRow struct {
	RecordedAt time.Time
	SolarMa    float64
	SolarMv    float64
	BatteryMv  float64
	SolarMw    float64
	PeakMw     float64
	Duty       float64
	State      string
	EnergyMwh  float64
}

func (q *Queries) LatestRecord(ctx context.Context) (LatestRecordRow, error) {
	row := q.db.QueryRowContext(ctx, latestRecord)
	var i LatestRecordRow
	err := row.Scan(
		&i.RecordedAt,
		&i.SolarMa,
		&i.SolarMv,
		&i.BatteryMv,
		&i.SolarMw,
		&i.PeakMw,
		&i.Duty,
		&i.State,
		&i.EnergyMwh,
	)
	return i, err
}

const writeRecord = `-- name: WriteRecord :exec
INSERT INTO charger_readings (
    solar_ma, solar_mv, battery_mv, solar_mw, peak_mw, duty, state, energy_mwh
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8
)
`

type WriteRecordParams struct {
	SolarMa   float64
	SolarMv   float64
	BatteryMv float64
	SolarMw   float64
	PeakMw    float64
	Duty      float64
	State     string
	EnergyMwh float64
}

func (q *Queries) WriteRecord(ctx context.Context, arg WriteRecordParams) error {
	_, err := q.db.ExecContext(ctx, writeRecord,
		arg.SolarMa,
		arg.SolarMv,
		arg.BatteryMv,
		arg.SolarMw,
		arg.PeakMw,
		arg.Duty,
		arg.State,
		arg.EnergyMwh,
	)
	return err
}
