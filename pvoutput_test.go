package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gr-butler/ppt/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepStatus(t *testing.T) {
	now := time.Date(2024, 6, 21, 9, 5, 0, 0, time.UTC)
	st := prepStatus(now, data.Summary{
		SolarMilliwatts:      79600,
		BatteryMillivolts:    12634,
		EnergyMilliwattHours: 12345,
	})

	assert.Equal(t, "20240621", st.Date)
	assert.Equal(t, "09:05", st.Time)
	assert.Equal(t, int64(12), st.EnergyWh)
	assert.Equal(t, int64(80), st.PowerW)
	assert.Equal(t, 12.63, st.Volts)
}

func TestPVOutput_Send(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		body = r.PostForm.Encode()
	}))
	defer srv.Close()

	p := newPVOutput("key", "1234")
	p.url = srv.URL
	err := p.Send(context.Background(), &pvStatus{Date: "20240621", Time: "09:05", EnergyWh: 12, PowerW: 80, Volts: 12.63})
	require.NoError(t, err)
	assert.Equal(t, "d=20240621&t=09%3A05&v1=12&v2=80&v6=12.63", body)
}

func TestPVOutput_SendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "Bad request 400: Invalid API Key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newPVOutput("bad", "1234")
	p.url = srv.URL
	err := p.Send(context.Background(), &pvStatus{Date: "20240621", Time: "09:05"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Invalid API Key")
}
