// SPDX-License-Identifier: MIT

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/epgsync/internal/config"
	"github.com/ManuGH/epgsync/internal/history"
	"github.com/ManuGH/epgsync/internal/jobs"
)

const guideJSON = `[
  {"@start": "20240825093000 +0800", "@stop": "20240825100000 +0800", "@channel": "CCTV-1", "title": {"@lang": "zh", "#text": "新闻"}, "desc": "Morning news"},
  {"@start": "20240826120000 +0800", "@stop": "20240826130000 +0800", "@channel": "CCTV-1", "title": "午间"},
  {"@start": "20240825093000 +0800", "@stop": "20240825100000 +0800", "@channel": "CCTV-2", "title": "财经"}
]`

const guideXML = `<?xml version="1.0" encoding="UTF-8"?>
<tv></tv>`

type staticStatus struct{ st *jobs.Status }

func (s staticStatus) Last() *jobs.Status { return s.st }

type staticHistory struct {
	runs []history.Entry
	err  error
}

func (s staticHistory) Recent(context.Context, int) ([]history.Entry, error) { return s.runs, s.err }

func (s staticHistory) Latest(context.Context) (history.Entry, error) {
	if s.err != nil {
		return history.Entry{}, s.err
	}
	if len(s.runs) == 0 {
		return history.Entry{}, history.ErrNotFound
	}
	return s.runs[0], nil
}

func writeOutputs(t *testing.T) config.OutputPaths {
	t.Helper()
	paths := config.Output{
		Dir:      t.TempDir(),
		XML:      "index.xml",
		Gzip:     "index.xml.gz",
		JSON:     "index.json",
		Checksum: "md5.txt",
	}.Paths()

	require.NoError(t, os.WriteFile(paths.XML, []byte(guideXML), 0o644))
	require.NoError(t, os.WriteFile(paths.JSON, []byte(guideJSON), 0o644))

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(guideXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(paths.Gzip, buf.Bytes(), 0o644))
	return paths
}

func newTestServer(t *testing.T, paths config.OutputPaths) *Server {
	t.Helper()
	return New(Config{
		Paths:    paths,
		Gatherer: prometheus.NewRegistry(),
		Now:      func() time.Time { return time.Date(2024, 8, 25, 8, 0, 0, 0, time.UTC) },
	}, staticStatus{st: &jobs.Status{JobID: "job-1", Outcome: jobs.OutcomeUpdated}}, staticHistory{
		runs: []history.Entry{{ID: "job-1", Outcome: "updated"}},
	})
}

func do(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestServer(t, writeOutputs(t)).Handler(), "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestStatus(t *testing.T) {
	rec := do(t, newTestServer(t, writeOutputs(t)).Handler(), "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Last    jobs.Status     `json:"last"`
		History []history.Entry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "job-1", body.Last.JobID)
	assert.Equal(t, jobs.OutcomeUpdated, body.Last.Outcome)
	require.Len(t, body.History, 1)
}

func TestStatus_HistoryErrorStillServes(t *testing.T) {
	s := New(Config{Gatherer: prometheus.NewRegistry()}, nil, staticHistory{err: errors.New("locked")})
	rec := do(t, s.Handler(), "/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"last":null}`, rec.Body.String())
}

func TestStatus_FallsBackToRecordedRunBeforeFirstSync(t *testing.T) {
	hist := staticHistory{runs: []history.Entry{
		{ID: "job-9", Outcome: "unchanged"},
		{ID: "job-8", Outcome: "updated"},
	}}
	s := New(Config{Gatherer: prometheus.NewRegistry()}, staticStatus{}, hist)
	rec := do(t, s.Handler(), "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Last         *jobs.Status    `json:"last"`
		LastRecorded *history.Entry  `json:"last_recorded"`
		History      []history.Entry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body.Last)
	require.NotNil(t, body.LastRecorded)
	assert.Equal(t, "job-9", body.LastRecorded.ID)
	assert.Len(t, body.History, 2)
}

func TestStatus_EmptyLedgerHasNoRecordedRun(t *testing.T) {
	s := New(Config{Gatherer: prometheus.NewRegistry()}, staticStatus{}, staticHistory{})
	rec := do(t, s.Handler(), "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"last":null}`, rec.Body.String())
}

func TestFilterGuide_ChannelNamesMatchAcrossNormalForms(t *testing.T) {
	programmes := []map[string]any{
		{"@channel": "Cafe\u0301 TV", "@start": "20240825093000 +0800", "@stop": "20240825100000 +0800", "title": "Espresso"},
		{"@channel": "Other", "@start": "20240825093000 +0800", "title": "Skip"},
	}

	got := filterGuide(programmes, "Caf\u00e9 TV", "2024-08-25")
	require.Len(t, got, 1)
	assert.Equal(t, Programme{Start: "09:30", End: "10:00", Title: "Espresso"}, got[0])
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "epgsync_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := New(Config{Gatherer: reg}, nil, nil)
	rec := do(t, s.Handler(), "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "epgsync_test_total 1")
}

func TestGuide_Document(t *testing.T) {
	h := newTestServer(t, writeOutputs(t)).Handler()

	rec := do(t, h, "/epg", map[string]string{"Accept-Encoding": "gzip"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, guideXML, string(plain))

	rec = do(t, h, "/epg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, guideXML, rec.Body.String())
	assert.Equal(t, "application/xml; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestGuide_NotSynced(t *testing.T) {
	paths := config.Output{Dir: t.TempDir(), XML: "a.xml", Gzip: "a.xml.gz", JSON: "a.json", Checksum: "md5"}.Paths()
	h := newTestServer(t, paths).Handler()

	assert.Equal(t, http.StatusNotFound, do(t, h, "/epg", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "/epg?ch=CCTV-1", nil).Code)
}

func TestGuide_Query(t *testing.T) {
	h := newTestServer(t, writeOutputs(t)).Handler()

	tests := []struct {
		name   string
		target string
		want   GuideResponse
	}{
		{
			name:   "channel and date",
			target: "/epg?ch=CCTV-1&date=2024-08-25",
			want: GuideResponse{Channel: "CCTV-1", Date: "2024-08-25", Items: []Programme{
				{Start: "09:30", End: "10:00", Title: "新闻", Desc: "Morning news"},
			}},
		},
		{
			name:   "channel defaults to today",
			target: "/epg?ch=CCTV-2",
			want: GuideResponse{Channel: "CCTV-2", Date: "2024-08-25", Items: []Programme{
				{Start: "09:30", End: "10:00", Title: "财经"},
			}},
		},
		{
			name:   "date only",
			target: "/epg?date=2024-08-26",
			want: GuideResponse{Date: "2024-08-26", Items: []Programme{
				{Start: "12:00", End: "13:00", Title: "午间"},
			}},
		},
		{
			name:   "unknown channel",
			target: "/epg?ch=nope&date=2024-08-25",
			want:   GuideResponse{Channel: "nope", Date: "2024-08-25", Items: []Programme{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.target, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			var got GuideResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClockTime(t *testing.T) {
	assert.Equal(t, "23:05", clockTime("20240825230500 +0800"))
	assert.Equal(t, "soon", clockTime("soon"))
	assert.Equal(t, "2024082X230500", clockTime("2024082X230500"))
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s := New(Config{Gatherer: prometheus.NewRegistry()}, nil, nil)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	client.CloseIdleConnections()
}
