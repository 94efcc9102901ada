package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/gr-butler/ppt/data"
)

/*

https://pvoutput.org/help/api_specification.html#add-status-service

Key points:

 Status updates are POSTed to https://pvoutput.org/service/r2/addstatus.jsp
 with the API key and system id in the X-Pvoutput-Apikey and
 X-Pvoutput-SystemId headers.

KEY		Description						UNIT

d		Date							yyyymmdd
t		Time							hh:mm
v1		Energy generation				Watt hours
v2		Power generation				Watts
v6		Voltage							Volts

 Energy is the total since midnight, the service works out the interval
 values itself.

*/

const pvOutputURL = "https://pvoutput.org/service/r2/addstatus.jsp"

type pvStatus struct {
	Date     string  `url:"d"`
	Time     string  `url:"t"`
	EnergyWh int64   `url:"v1"`
	PowerW   int64   `url:"v2"`
	Volts    float64 `url:"v6,omitempty"`
}

type pvOutput struct {
	url      string
	apiKey   string
	systemID string
	client   *http.Client
}

func newPVOutput(apiKey, systemID string) *pvOutput {
	return &pvOutput{
		url:      pvOutputURL,
		apiKey:   apiKey,
		systemID: systemID,
		client:   &http.Client{Timeout: time.Second * 30},
	}
}

// build the status from the averaged readings
func prepStatus(now time.Time, s data.Summary) *pvStatus {
	return &pvStatus{
		Date:     now.Format("20060102"),
		Time:     now.Format("15:04"),
		EnergyWh: int64(s.EnergyMilliwattHours / 1000),
		PowerW:   int64(math.Round(s.SolarMilliwatts / 1000)),
		Volts:    math.Round(s.BatteryMillivolts/10) / 100,
	}
}

func (p *pvOutput) Send(ctx context.Context, st *pvStatus) error {
	vals, err := query.Values(st)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(vals.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Pvoutput-Apikey", p.apiKey)
	req.Header.Set("X-Pvoutput-SystemId", p.systemID)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to POST status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("failed to POST status HTTP [%v] [%v]", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
